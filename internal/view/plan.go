package view

import (
	"strings"

	"github.com/danmuck/dmapctl/internal/cache"
	"github.com/danmuck/dmapctl/internal/protocol"
)

const (
	PlaceholderText = "Select a data node to view the information."
	LoadingText     = "Loading..."
	NoMapText       = "No map"
	NoNewNodesText  = "There are no new nodes for this protocol"
	LoadFailedText  = "could not load"
)

// PlanKind discriminates RenderPlan. Every switch over PlanKind handles PlanUnsupported.
type PlanKind int

const (
	PlanNavigation PlanKind = iota
	PlanInfo
	PlanList
	PlanCreate
	PlanUnsupported
	PlanNotFound
)

func (k PlanKind) String() string {
	switch k {
	case PlanNavigation:
		return "navigation"
	case PlanInfo:
		return "info"
	case PlanList:
		return "list"
	case PlanCreate:
		return "create"
	case PlanUnsupported:
		return "unsupported"
	default:
		return "not_found"
	}
}

// Segment is the route segment under a protocol.
type Segment string

const (
	SegmentInfo   Segment = ""
	SegmentList   Segment = "dnodes"
	SegmentCreate Segment = "newdnode"
)

// ParseSegment accepts the route segments and their aliases.
func ParseSegment(raw string) (Segment, bool) {
	switch strings.ToLower(strings.Trim(strings.TrimSpace(raw), "/")) {
	case "", "info":
		return SegmentInfo, true
	case "dnodes", "list":
		return SegmentList, true
	case "newdnode", "create", "new":
		return SegmentCreate, true
	default:
		return "", false
	}
}

// NavEntry links one protocol from the navigation plan.
type NavEntry struct {
	Key   protocol.Key `json:"key"`
	Label string       `json:"label"`
}

// Tab links one segment of a protocol view.
type Tab struct {
	Label   string  `json:"label"`
	Segment Segment `json:"segment"`
}

// Field is one labelled value of a rendered record.
type Field struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// Row is one rendered record.
type Row struct {
	Kind     string  `json:"kind"`
	Identity string  `json:"identity"`
	Fields   []Field `json:"fields"`
}

// ListView is the list segment state for one trigger.
type ListView struct {
	Status  cache.Status  `json:"-"`
	State   string        `json:"state"`
	Trigger cache.Trigger `json:"-"`
	Rev     uint64        `json:"rev"`
	Rows    []Row         `json:"rows"`
	Err     error         `json:"-"`
	Reason  string        `json:"reason,omitempty"`
	Message string        `json:"message,omitempty"`
}

// FormField is one operator-supplied field of a create form.
type FormField struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Numeric bool   `json:"numeric,omitempty"`
	// Stamped fields fall back to the allocated identifier when left blank.
	Stamped bool `json:"stamped,omitempty"`
}

// FormSpec describes the create form of one protocol.
type FormSpec struct {
	Protocol protocol.Key `json:"protocol"`
	Title    string       `json:"title"`
	Fields   []FormField  `json:"fields"`
}

// RenderPlan is the resolved view for one key and segment.
type RenderPlan struct {
	Kind     PlanKind     `json:"-"`
	KindName string       `json:"kind"`
	Protocol protocol.Key `json:"protocol,omitempty"`
	Segment  Segment      `json:"segment"`
	Title    string       `json:"title,omitempty"`
	Body     string       `json:"body,omitempty"`
	Nav      []NavEntry   `json:"nav,omitempty"`
	Tabs     []Tab        `json:"tabs,omitempty"`
	List     *ListView    `json:"list,omitempty"`
	Form     *FormSpec    `json:"form,omitempty"`
}

func defaultTabs() []Tab {
	return []Tab{
		{Label: "Info", Segment: SegmentInfo},
		{Label: "New", Segment: SegmentCreate},
		{Label: "Data nodes", Segment: SegmentList},
	}
}
