package logging

import (
	"log/slog"
	"strings"
)

type infoField struct {
	label string
	value string
}

// fieldOrder puts the keys an operator scans for first. Anything else
// follows in record order.
var fieldOrder = []string{
	FieldEventType,
	FieldAction,
	FieldQueue,
	"state",
	FieldGeneration,
	"error",
	FieldErrorHint,
	FieldImpact,
	"command",
	"exposure",
	"image",
	"reason",
}

var fieldLabels = map[string]string{
	FieldEventType:  "Event",
	FieldErrorHint:  "Hint",
	FieldGeneration: "Gen",
}

const (
	maxFieldLen = 160
	maxErrorLen = 200
)

func selectInfoFields(attrs []kv) ([]infoField, int) {
	if len(attrs) == 0 {
		return nil, 0
	}
	ordered := make([]kv, 0, len(attrs))
	taken := make([]bool, len(attrs))
	for _, key := range fieldOrder {
		for i, attr := range attrs {
			if !taken[i] && attr.key == key {
				taken[i] = true
				ordered = append(ordered, attr)
				break
			}
		}
	}
	for i, attr := range attrs {
		if !taken[i] {
			ordered = append(ordered, attr)
		}
	}

	out := make([]infoField, 0, len(ordered))
	hidden := 0
	for _, attr := range ordered {
		if inHeader(attr.key) {
			continue
		}
		value := infoValue(attr.key, attr.value)
		if debugOnly(attr.key) || (len(value) > maxFieldLen && attr.key != "error" && attr.key != "command") {
			hidden++
			continue
		}
		out = append(out, infoField{label: labelFor(attr.key), value: value})
	}
	return out, hidden
}

func infoValue(key string, v slog.Value) string {
	if v = v.Resolve(); v.Kind() == slog.KindBool {
		if v.Bool() {
			return "yes"
		}
		return "no"
	}
	value := fieldValue(v)
	if key == "error" && len(value) > maxErrorLen {
		value = value[:maxErrorLen] + "..."
	}
	return value
}

// inHeader reports keys the header line already shows.
func inHeader(key string) bool {
	switch key {
	case "", FieldComponent, FieldWorker, FieldRole, FieldTaskID:
		return true
	}
	return false
}

func debugOnly(key string) bool {
	switch key {
	case FieldRunID, "pid", "trace":
		return true
	}
	return strings.HasSuffix(key, "_path") || strings.HasSuffix(key, "_dir")
}

func labelFor(key string) string {
	if label, ok := fieldLabels[key]; ok {
		return label
	}
	words := strings.FieldsFunc(key, func(r rune) bool { return r == '_' || r == '-' || r == '.' })
	for i, w := range words {
		w = strings.ToLower(w)
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func infoSummaryKey(hdr header) string {
	if subject := hdr.subject(); subject != "" {
		return subject
	}
	return hdr.component
}
