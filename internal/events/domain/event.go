package domain

// Column names of a persisted event row.
const (
	ColumnUniqueID           = "uniqueId"
	ColumnName               = "name"
	ColumnTimestamp          = "timestamp"
	ColumnUser               = "user"
	ColumnWorkstation        = "workstation"
	ColumnData               = "data"
	ColumnCorrelationID      = "correlationId"
	ColumnApplicationVersion = "applicationVersion"
	ColumnApplicationName    = "applicationName"
)

// EventRecord is one emitted event. It is built once per emission and not mutated afterwards.
type EventRecord struct {
	UniqueID           string `json:"uniqueId" cbor:"uniqueId"`
	Name               string `json:"name" cbor:"name"`
	Timestamp          int64  `json:"timestamp" cbor:"timestamp"` // epoch milliseconds
	Data               string `json:"data" cbor:"data"`           // pre-serialized payload
	User               string `json:"user" cbor:"user"`
	Workstation        string `json:"workstation" cbor:"workstation"`
	CorrelationID      string `json:"correlationId" cbor:"correlationId"`
	ApplicationVersion string `json:"applicationVersion" cbor:"applicationVersion"`
	ApplicationName    string `json:"applicationName" cbor:"applicationName"`
}
