// Package wire defines the JSON request/reply shapes of the EdgeRouter
// admin protocol (§6). The original serverlessonedge protocol is
// protobuf-shaped over gRPC; per the spec, "the contract is structural,
// not bit-exact", so this implementation exposes the same six
// operations over HTTP+JSON instead of hand-authored generated pb.go
// stubs (see DESIGN.md).
package wire

// Op names the admin operation a request carries. Exactly one of
// NumTables, Dump, Flush, Change, Remove, Table is valid per request.
type Op string

const (
	OpNumTables Op = "NUM_TABLES"
	OpDump      Op = "DUMP"
	OpFlush     Op = "FLUSH"
	OpChange    Op = "CHANGE"
	OpRemove    Op = "REMOVE"
	OpTable     Op = "TABLE"
)

// AdminRequest is the wire shape of one admin call (§6).
type AdminRequest struct {
	Op Op `json:"op"`

	// CHANGE / REMOVE fields.
	Lambda      string  `json:"lambda,omitempty"`
	Destination string  `json:"destination,omitempty"`
	Weight      float64 `json:"weight,omitempty"`
	Final       bool    `json:"final,omitempty"`

	// TABLE field.
	TableID int `json:"table_id,omitempty"`
}

// DestinationEntry is one destination within a TABLE reply.
type DestinationEntry struct {
	Weight float64 `json:"weight"`
	Final  bool    `json:"final"`
}

// AdminResponse is the wire shape of an admin reply (§6). Exactly the
// fields relevant to the request's Op are populated; RetCode is "OK" on
// success or an error kind stringified on failure (§7).
type AdminResponse struct {
	RetCode   string                                  `json:"ret_code"`
	NumTables int                                     `json:"num_tables,omitempty"`
	Dump      string                                  `json:"dump,omitempty"`
	Table     map[string]map[string]DestinationEntry `json:"table,omitempty"`
}
