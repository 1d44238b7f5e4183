package downloads

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Operation names as sent in the envelope msg field.
const (
	OpDownload   = "download"
	OpOpen       = "open"
	OpShow       = "show"
	OpPause      = "pause"
	OpResume     = "resume"
	OpCancel     = "cancel"
	OpErase      = "erase"
	OpSearch     = "search"
	OpRemoveFile = "removeFile"
)

// Event kinds pushed by the peer.
const (
	EventCreated             = "created"
	EventChanged             = "changed"
	EventErased              = "erased"
	EventDeterminingFilename = "determiningFilename"
)

// EventKinds lists every kind a peer may push. determiningFilename depends on
// peer support.
var EventKinds = []string{EventCreated, EventChanged, EventErased, EventDeterminingFilename}

const (
	StateInProgress  = "in_progress"
	StateInterrupted = "interrupted"
	StateComplete    = "complete"
)

const (
	ConflictUniquify  = "uniquify"
	ConflictOverwrite = "overwrite"
	ConflictPrompt    = "prompt"
)

var ErrInvalidOptions = errors.New("downloads: invalid options")

type HeaderPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// DownloadOptions is forwarded to the peer as the download payload.
type DownloadOptions struct {
	URL            string       `json:"url"`
	Filename       string       `json:"filename,omitempty"`
	ConflictAction string       `json:"conflictAction,omitempty"`
	SaveAs         *bool        `json:"saveAs,omitempty"`
	Method         string       `json:"method,omitempty"`
	Headers        []HeaderPair `json:"headers,omitempty"`
	Body           string       `json:"body,omitempty"`
	Incognito      bool         `json:"incognito,omitempty"`
}

func (o DownloadOptions) Validate() error {
	if strings.TrimSpace(o.URL) == "" {
		return fmt.Errorf("%w: missing url", ErrInvalidOptions)
	}
	u, err := url.Parse(o.URL)
	if err != nil || u.Scheme == "" {
		return fmt.Errorf("%w: url %q is not absolute", ErrInvalidOptions, o.URL)
	}
	switch o.Method {
	case "", "GET", "POST":
	default:
		return fmt.Errorf("%w: method %q", ErrInvalidOptions, o.Method)
	}
	if o.Body != "" && o.Method != "POST" {
		return fmt.Errorf("%w: body requires POST", ErrInvalidOptions)
	}
	switch o.ConflictAction {
	case "", ConflictUniquify, ConflictOverwrite, ConflictPrompt:
	default:
		return fmt.Errorf("%w: conflict action %q", ErrInvalidOptions, o.ConflictAction)
	}
	for _, h := range o.Headers {
		if strings.TrimSpace(h.Name) == "" {
			return fmt.Errorf("%w: header without name", ErrInvalidOptions)
		}
	}
	return nil
}

// Query selects downloads for erase and search. Without an ID nothing is
// sent to the peer.
type Query struct {
	ID *int `json:"id,omitempty"`
}

func ByID(id int) Query {
	return Query{ID: &id}
}

type Item struct {
	ID            int    `json:"id"`
	URL           string `json:"url"`
	Filename      string `json:"filename,omitempty"`
	Mime          string `json:"mime,omitempty"`
	State         string `json:"state,omitempty"`
	Paused        bool   `json:"paused"`
	CanResume     bool   `json:"canResume"`
	Error         string `json:"error,omitempty"`
	BytesReceived int64  `json:"bytesReceived"`
	TotalBytes    int64  `json:"totalBytes"`
	FileSize      int64  `json:"fileSize"`
	Exists        bool   `json:"exists"`
	StartTime     string `json:"startTime,omitempty"`
	EndTime       string `json:"endTime,omitempty"`
	Incognito     bool   `json:"incognito,omitempty"`
}

type StringDelta struct {
	Previous string `json:"previous,omitempty"`
	Current  string `json:"current,omitempty"`
}

type BoolDelta struct {
	Previous bool `json:"previous"`
	Current  bool `json:"current"`
}

type IntDelta struct {
	Previous int64 `json:"previous"`
	Current  int64 `json:"current"`
}

// Delta reports the fields of one download that changed. Unchanged fields
// are nil.
type Delta struct {
	ID         int          `json:"id"`
	URL        *StringDelta `json:"url,omitempty"`
	Filename   *StringDelta `json:"filename,omitempty"`
	Mime       *StringDelta `json:"mime,omitempty"`
	State      *StringDelta `json:"state,omitempty"`
	Error      *StringDelta `json:"error,omitempty"`
	StartTime  *StringDelta `json:"startTime,omitempty"`
	EndTime    *StringDelta `json:"endTime,omitempty"`
	Paused     *BoolDelta   `json:"paused,omitempty"`
	CanResume  *BoolDelta   `json:"canResume,omitempty"`
	Exists     *BoolDelta   `json:"exists,omitempty"`
	TotalBytes *IntDelta    `json:"totalBytes,omitempty"`
	FileSize   *IntDelta    `json:"fileSize,omitempty"`
}

type IconOptions struct {
	Size int `json:"size,omitempty"`
}

type idPayload struct {
	ID int `json:"id"`
}
