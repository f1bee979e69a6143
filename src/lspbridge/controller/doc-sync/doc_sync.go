package docsync

import (
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/entity"
	"github.com/uber-go/tally"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const _nameKey = "doc_sync"

// DocumentState keeps track of the current state of the managed document.
type DocumentState int

const (
	// DocumentStateNeverOpened indicates that no open message has been received yet.
	DocumentStateNeverOpened DocumentState = iota
	// DocumentStateOpen indicates that the analysis server holds the document.
	DocumentStateOpen
	// DocumentStateClosed indicates that the document was closed and may be opened again.
	DocumentStateClosed
)

// SyncKind selects the notification that carries a Sync to the analysis server.
type SyncKind int

const (
	// SyncOpen is sent as textDocument/didOpen.
	SyncOpen SyncKind = iota
	// SyncChange is sent as a full-text textDocument/didChange.
	SyncChange
)

// Sync is one content update to send to the analysis server.
type Sync struct {
	Kind    SyncKind
	Version int32
	Text    string
}

// Controller creates the per-session document trackers.
type Controller interface {
	NewDocument(ws *entity.Workspace) *Document
}

// Params are inbound parameters to initialize a new controller.
type Params struct {
	fx.In

	Logger *zap.SugaredLogger
	Stats  tally.Scope
}

type controller struct {
	logger *zap.SugaredLogger
	stats  tally.Scope
}

// New creates a new controller for document sync.
func New(p Params) Controller {
	return &controller{
		logger: p.Logger.With("controller", _nameKey),
		stats:  p.Stats.SubScope(_nameKey),
	}
}

func (c *controller) NewDocument(ws *entity.Workspace) *Document {
	c.logger.Debugw("tracking document", "path", ws.DocumentPath)
	return &Document{
		path:  ws.DocumentPath,
		stats: c.stats,
	}
}

// Document tracks the single managed document of a session.
// Versions start at 0 on the first open and only ever increase, across close and re-open.
// A Document is owned by its session's loop and is not safe for concurrent use.
type Document struct {
	path    string
	state   DocumentState
	version int32
	text    string
	stats   tally.Scope
}

// Path returns the absolute path of the document.
func (d *Document) Path() string {
	return d.path
}

// State returns the current DocumentState.
func (d *Document) State() DocumentState {
	return d.state
}

// IsOpen reports whether the document is open.
func (d *Document) IsOpen() bool {
	return d.state == DocumentStateOpen
}

// Version returns the version of the last update.
func (d *Document) Version() int32 {
	return d.version
}

// Text returns the full text of the last update.
func (d *Document) Text() string {
	return d.text
}

// Open records an open message. Opening an open document replaces its content as a change.
func (d *Document) Open(text string) Sync {
	switch d.state {
	case DocumentStateOpen:
		return d.change(text)
	case DocumentStateClosed:
		d.version++
	}
	d.state = DocumentStateOpen
	d.text = text
	d.stats.Counter("opens").Inc(1)
	return Sync{Kind: SyncOpen, Version: d.version, Text: text}
}

// Change records a full replacement of the content. It returns false if the document is not open.
func (d *Document) Change(text string) (Sync, bool) {
	if d.state != DocumentStateOpen {
		d.stats.Counter("changes_ignored").Inc(1)
		return Sync{}, false
	}
	return d.change(text), true
}

func (d *Document) change(text string) Sync {
	d.version++
	d.text = text
	d.stats.Counter("changes").Inc(1)
	return Sync{Kind: SyncChange, Version: d.version, Text: text}
}

// Close records a close message. It returns false if the document is not open.
func (d *Document) Close() bool {
	if d.state != DocumentStateOpen {
		return false
	}
	d.state = DocumentStateClosed
	d.stats.Counter("closes").Inc(1)
	return true
}

// IsCurrent reports whether a result computed at version is still valid for the document.
func (d *Document) IsCurrent(version int32) bool {
	return d.state == DocumentStateOpen && d.version == version
}
