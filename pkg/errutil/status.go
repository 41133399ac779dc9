package errutil

// CoreStatus is a transport-agnostic status code attached to every domain
// error. Values are stable strings so they survive serialization into logs
// and job error columns.
type CoreStatus string

const (
	StatusBadRequest          CoreStatus = "bad_request"
	StatusNotFound            CoreStatus = "not_found"
	StatusConflict            CoreStatus = "conflict"
	StatusInsufficientBalance CoreStatus = "insufficient_balance"
	StatusTimeout             CoreStatus = "timeout"
	StatusUnavailable         CoreStatus = "unavailable"
	StatusInternal            CoreStatus = "internal"
	StatusUnknown             CoreStatus = "unknown"
)
