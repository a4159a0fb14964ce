package view

import (
	"fmt"
	"strconv"

	"github.com/danmuck/dmapctl/internal/cache"
	"github.com/danmuck/dmapctl/internal/protocol"
	"github.com/danmuck/dmapctl/internal/record"
)

// RenderRecord maps one record through its protocol renderer.
// Mappings locked to unknown nodes render as-is.
func RenderRecord(desc protocol.Descriptor, rec record.NodeRecord) Row {
	switch r := rec.(type) {
	case record.Generic:
		last := ""
		if !r.LastUpdate.IsZero() {
			last = record.FormatTimestamp(r.LastUpdate)
		}
		return row(desc, rec, map[string]string{
			"node_uid":          r.UID,
			"node_val":          r.Value,
			"node_last_update":  last,
			"node_name":         r.Name,
			"node_rw_direction": string(r.RW),
		})
	case record.ModbusMapping:
		return row(desc, rec, map[string]string{
			"mb_lock_to_uid": r.LockedToUID,
			"mb_ip":          r.IP,
			"mb_port":        strconv.Itoa(r.Port),
			"mb_register":    strconv.Itoa(r.Register),
			"mb_rw":          string(r.RW),
		})
	case record.MqttMapping:
		return row(desc, rec, map[string]string{
			"mqtt_lock_to_uid": r.LockedToUID,
			"mqtt_ip":          r.IP,
			"mqtt_topic":       r.Topic,
			"mqtt_topic_modif": strconv.Itoa(r.TopicModifier),
			"mqtt_rw":          string(r.RW),
		})
	case nil:
		return Row{Kind: protocol.KindUnsupported.String()}
	default:
		return Row{Kind: protocol.KindUnsupported.String(), Identity: fmt.Sprintf("%T", rec)}
	}
}

func row(desc protocol.Descriptor, rec record.NodeRecord, values map[string]string) Row {
	fields := make([]Field, 0, len(desc.Fields))
	for _, spec := range desc.Fields {
		fields = append(fields, Field{Name: spec.Name, Label: spec.Label, Value: values[spec.Name]})
	}
	return Row{Kind: rec.Kind().String(), Identity: rec.Identity(), Fields: fields}
}

// FormFor returns the create form for desc, or false for unsupported protocols.
func FormFor(desc protocol.Descriptor) (FormSpec, bool) {
	if !desc.Supported() {
		return FormSpec{}, false
	}
	spec := FormSpec{Protocol: desc.Key, Title: desc.DisplayName}
	for _, f := range desc.OperatorFields() {
		spec.Fields = append(spec.Fields, FormField{
			Name:    f.Name,
			Label:   f.Label,
			Numeric: f.Numeric,
			Stamped: f.Stamped,
		})
	}
	return spec, true
}

func listView(desc protocol.Descriptor, state cache.State[[]record.NodeRecord]) *ListView {
	lv := &ListView{
		Status:  state.Status,
		State:   state.Status.String(),
		Trigger: state.Trigger,
		Rev:     state.Trigger.Rev,
		Rows:    []Row{},
	}
	switch state.Status {
	case cache.StatusReady:
		for _, rec := range state.Value {
			lv.Rows = append(lv.Rows, RenderRecord(desc, rec))
		}
	case cache.StatusFailed:
		lv.Err = state.Err
		lv.Message = LoadFailedText
		if state.Err != nil {
			lv.Reason = state.Err.Error()
		}
	case cache.StatusPending, cache.StatusAbsent:
		lv.Status = cache.StatusPending
		lv.State = cache.StatusPending.String()
		lv.Message = LoadingText
	}
	return lv
}
