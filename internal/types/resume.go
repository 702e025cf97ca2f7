package types

import "time"

// CapturedHeaders is one entry of the header cache: the request line plus
// the headers observed for a network request id.
type CapturedHeaders struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Timestamp time.Time         `json:"timestamp"`
	Headers   map[string]string `json:"headers"`
}

// RequestEvent is a matched network request emitted by the observer.
// Body holds the raw post data when the request carried one.
type RequestEvent struct {
	RequestID   string            `json:"requestId"`
	TabID       string            `json:"tabId"`
	URL         string            `json:"url"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers"`
	ContentType string            `json:"contentType"`
	Body        []byte            `json:"body,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// ReplayResult is the outcome of re-issuing a captured request.
type ReplayResult struct {
	Request  RequestEvent      `json:"request"`
	Headers  map[string]string `json:"headers"`
	Status   int               `json:"status"`
	JSONBody any               `json:"jsonBody"`
	RawBody  []byte            `json:"-"`
}

// AttachmentFile is a base64-encoded file carried alongside a resume body.
// Tag is always "resumeAttachment" for resume attachments.
type AttachmentFile struct {
	Tag     string `json:"tag"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

// ResumeEvent is the normalized unit flowing through the merge: one resume
// observed in one tab, ready for confirmation and submission.
//
// JSONBody is always non-nil for adapter-produced events. FileContentB64 is
// nil or holds exactly one attachment.
type ResumeEvent struct {
	TabID          string            `json:"tabId"`
	RequestID      string            `json:"requestId,omitempty"`
	URL            string            `json:"requestUrl"`
	HTML           string            `json:"html,omitempty"`
	JSONBody       any               `json:"jsonBody"`
	RequestBody    string            `json:"requestBody,omitempty"`
	RequestHeaders map[string]string `json:"requestHeaders,omitempty"`
	FileContentB64 []AttachmentFile  `json:"fileContentB64,omitempty"`
	Site           string            `json:"site"`
}

// SyncOutcome is the terminal result of one submission, fed back to the tab
// and to the audit log.
type SyncOutcome struct {
	OpenID     string `json:"openId,omitempty"`
	EntityType string `json:"entityType,omitempty"`
	TenantID   string `json:"tenantId,omitempty"`
	ErrCode    int    `json:"errCode,omitempty"`
	ErrMessage string `json:"errMessage,omitempty"`
}

// Succeeded reports whether the backend accepted and materialized the entity.
func (o SyncOutcome) Succeeded() bool { return o.ErrCode == 0 && o.OpenID != "" }
