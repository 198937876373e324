package models

// Envelope is the uniform response of every analytics entry point
type Envelope struct {
	Success  bool         `json:"success"`
	Data     interface{}  `json:"data,omitempty"`
	Error    *ErrorDetail `json:"error,omitempty"`
	Metadata Metadata     `json:"metadata"`
}

// Metadata accompanies every envelope
type Metadata struct {
	ResponseTime    float64 `json:"responseTime"` // wall-clock milliseconds
	Cached          bool    `json:"cached"`
	DataPoints      int     `json:"dataPoints,omitempty"`
	Interval        string  `json:"interval,omitempty"`
	SourceDataCount int     `json:"sourceDataCount,omitempty"`
	Anonymized      bool    `json:"anonymized"`
	Message         string  `json:"message,omitempty"`
	RequestID       string  `json:"requestId,omitempty"`
}

// OK builds a successful envelope
func OK(data interface{}, meta Metadata) Envelope {
	return Envelope{Success: true, Data: data, Metadata: meta}
}

// Fail builds a failed envelope
func Fail(code, message string, details map[string]interface{}, meta Metadata) Envelope {
	return Envelope{
		Success:  false,
		Error:    &ErrorDetail{Code: code, Message: message, Details: details},
		Metadata: meta,
	}
}
