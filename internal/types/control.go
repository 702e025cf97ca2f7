package types

// Action types accepted on the command channel. Unknown types produce an
// error frame echoing the request id.
const (
	ActionOpenTab           = "OpenTabAction"
	ActionScreenShot        = "ScreenShotAction"
	ActionGetTabsInfo       = "GetTabsInfoAction"
	ActionClickElement      = "ClickElementAction"
	ActionSendKey           = "SendKeyAction"
	ActionClearKey          = "ClearKeyAction"
	ActionKeypress          = "KeypressAction"
	ActionSwitchTab         = "SwitchTabAction"
	ActionScroll            = "ScrollAction"
	ActionHighlightElements = "HighlightElementsAction"
	ActionRemoveHighlight   = "RemoveHighlightAction"
	ActionSendLogMessage    = "SendLogMessageAction"
	ActionSidebarChat       = "SidebarChatMessageAction"
	ActionFileUpload        = "FileUploadAction"
)

// Command is an inbound frame from the automation server. Fields beyond
// the envelope are action-specific and may be absent.
type Command struct {
	Type            string  `json:"type,omitempty"`
	ActionType      string  `json:"actionType"`
	RequestUniqueID string  `json:"requestUniqueId"`
	URL             string  `json:"url,omitempty"`
	TabID           string  `json:"tabId,omitempty"`
	XPath           string  `json:"xpath,omitempty"`
	Selector        string  `json:"selector,omitempty"`
	Text            string  `json:"text,omitempty"`
	Key             string  `json:"key,omitempty"`
	DeltaX          float64 `json:"deltaX,omitempty"`
	DeltaY          float64 `json:"deltaY,omitempty"`
	Message         string  `json:"message,omitempty"`
	FileURL         string  `json:"fileUrl,omitempty"`
	FileName        string  `json:"fileName,omitempty"`
}

// Reply is an outbound frame. Every reply, success or error, echoes the
// requestUniqueId it answers.
type Reply struct {
	Type            string `json:"type,omitempty"`
	ActionType      string `json:"actionType,omitempty"`
	RequestUniqueID string `json:"requestUniqueId"`
	Success         bool   `json:"success"`
	Data            any    `json:"data,omitempty"`
	Error           string `json:"error,omitempty"`
}

// TabInfo describes one attached browser tab.
type TabInfo struct {
	TabID    string `json:"tabId"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Active   bool   `json:"active"`
	Attached bool   `json:"attached"`
}
