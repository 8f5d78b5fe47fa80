package xmlpatch

import "github.com/sokinpui/xmlpatch/model"

// Request is a verb sent to a Session. The set is closed.
type Request interface {
	isRequest()
}

// ApplyXML compiles raw LLM output into the pending change set.
type ApplyXML struct {
	Raw string
}

// ConfirmApply writes the pending changes whose indexes are selected.
type ConfirmApply struct {
	Selected []int
}

// CancelChanges discards the pending change set.
type CancelChanges struct{}

// ViewDiff opens the comparison view for one pending change.
type ViewDiff struct {
	Index int
}

// GetFileTree builds a snapshot of the workspace tree.
type GetFileTree struct{}

// CopyFileTreeOutput emits the selected files as XML and delivers it.
type CopyFileTreeOutput struct {
	Instructions string
	Selection    []model.Selection
}

func (ApplyXML) isRequest()           {}
func (ConfirmApply) isRequest()       {}
func (CancelChanges) isRequest()      {}
func (ViewDiff) isRequest()           {}
func (GetFileTree) isRequest()        {}
func (CopyFileTreeOutput) isRequest() {}

// Response is the answer to exactly one Request.
type Response interface {
	isResponse()
}

// DisplayChanges answers ApplyXML.
type DisplayChanges struct {
	Changes  []model.FileChange
	Warnings []string
}

// ChangesApplied answers ConfirmApply.
type ChangesApplied struct {
	Report  model.ApplyReport
	Summary model.Summary
}

// ChangesCleared answers CancelChanges.
type ChangesCleared struct{}

// DiffOpened answers ViewDiff.
type DiffOpened struct {
	Index  int
	Before string
	After  string
	Title  string
	// Preview is a unified diff of the change.
	Preview string
	// Shown is set when a viewer displayed the artifacts.
	Shown bool
}

// DisplayFileTree answers GetFileTree.
type DisplayFileTree struct {
	Tree model.Tree
}

// ProcessingComplete answers CopyFileTreeOutput and is also sent as the
// final emission event.
type ProcessingComplete struct {
	XML      string
	Included int
	Skipped  int
	Bytes    int64
	// Delivered is set when the XML reached the clipboard.
	Delivered bool
}

// ErrorResponse reports a failed request. The session stays usable.
type ErrorResponse struct {
	Err error
}

func (DisplayChanges) isResponse()     {}
func (ChangesApplied) isResponse()     {}
func (ChangesCleared) isResponse()     {}
func (DiffOpened) isResponse()         {}
func (DisplayFileTree) isResponse()    {}
func (ProcessingComplete) isResponse() {}
func (ErrorResponse) isResponse()      {}

func (e ErrorResponse) Error() string { return e.Err.Error() }

// Event is a progress notification sent through the session's sink.
type Event interface {
	isEvent()
}

// ProcessingStarted is sent when an emission begins.
type ProcessingStarted struct{}

// ProcessingProgress is sent at each emission batch boundary.
type ProcessingProgress struct {
	Processed int
	Total     int
}

func (ProcessingStarted) isEvent()  {}
func (ProcessingProgress) isEvent() {}
func (ProcessingComplete) isEvent() {}
