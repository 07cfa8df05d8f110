package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ehrlich-b/go-zoned"
	"github.com/ehrlich-b/go-zoned/internal/config"
	"github.com/ehrlich-b/go-zoned/internal/report"
)

// render writes v as JSON or YAML, or calls text for the text format
func render(w io.Writer, v any, text func(io.Writer) error) error {
	switch cfg.Output {
	case config.OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case config.OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return text(w)
	}
}

type zoneView struct {
	Start            uint64 `json:"start" yaml:"start"`
	Length           uint64 `json:"length" yaml:"length"`
	WritePointer     uint64 `json:"write_pointer" yaml:"write_pointer"`
	Capacity         uint64 `json:"capacity" yaml:"capacity"`
	Type             string `json:"type" yaml:"type"`
	Condition        string `json:"condition" yaml:"condition"`
	ResetRecommended bool   `json:"reset_recommended" yaml:"reset_recommended"`
	NonSeq           bool   `json:"non_seq" yaml:"non_seq"`
}

type reportView struct {
	Device    string     `json:"device" yaml:"device"`
	Variant   string     `json:"variant" yaml:"variant"`
	ByteOrder string     `json:"byte_order" yaml:"byte_order"`
	Stated    uint32     `json:"stated" yaml:"stated"`
	Returned  int        `json:"returned" yaml:"returned"`
	Truncated bool       `json:"truncated" yaml:"truncated"`
	Same      string     `json:"same,omitempty" yaml:"same,omitempty"`
	MaxLBA    uint64     `json:"max_lba,omitempty" yaml:"max_lba,omitempty"`
	Zones     []zoneView `json:"zones" yaml:"zones"`
}

func newReportView(path string, rep *zoned.Report) reportView {
	h := rep.Header
	v := reportView{
		Device:    path,
		Variant:   h.Variant.String(),
		ByteOrder: byteOrderName(h),
		Stated:    h.Stated,
		Returned:  len(rep.Zones),
		Truncated: h.Truncated,
		Zones:     make([]zoneView, 0, len(rep.Zones)),
	}
	if h.Variant.Legacy() {
		v.Same = h.Same.String()
		v.MaxLBA = h.MaxLBA
	}
	for _, z := range rep.Zones {
		v.Zones = append(v.Zones, zoneView{
			Start:            z.Start,
			Length:           z.Length,
			WritePointer:     z.WritePointer,
			Capacity:         z.Capacity,
			Type:             z.Type.String(),
			Condition:        z.Condition.String(),
			ResetRecommended: z.ResetRecommended,
			NonSeq:           z.NonSeqResourcesActive,
		})
	}
	return v
}

func byteOrderName(h report.Header) string {
	if h.ByteOrder == nil {
		return "unknown"
	}
	if h.BigEndian() {
		return "big-endian"
	}
	return "little-endian"
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func writeReportText(w io.Writer, path string, rep *zoned.Report) error {
	h := rep.Header
	fmt.Fprintf(w, "Device: %s (variant %s, %s)\n", path, h.Variant, byteOrderName(h))
	if h.Variant.Legacy() {
		fmt.Fprintf(w, "  Same: %s, max lba 0x%x\n", h.Same, h.MaxLBA)
	}
	if h.Truncated {
		fmt.Fprintf(w, "  Zones: %d of %d (truncated, use a larger --length)\n", len(rep.Zones), h.Stated)
	} else {
		fmt.Fprintf(w, "  Zones: %d\n", len(rep.Zones))
	}
	for _, z := range rep.Zones {
		_, err := fmt.Fprintf(w, "  start: 0x%09x, len 0x%06x, wptr 0x%06x reset:%d non-seq:%d, zcond:%2d(%s) [type: %d(%s)]\n",
			z.Start, z.Length, z.Written(),
			b2i(z.ResetRecommended), b2i(z.NonSeqResourcesActive),
			uint8(z.Condition), z.Condition.Short(),
			uint8(z.Type), z.Type)
		if err != nil {
			return err
		}
	}
	return nil
}

// parseNumber accepts decimal, 0x hex and 0 octal
func parseNumber(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(s), 0, 64)
}

var filterNames = []report.Filter{
	report.FilterAll,
	report.FilterEmpty,
	report.FilterImplicitOpen,
	report.FilterExplicitOpen,
	report.FilterClosed,
	report.FilterFull,
	report.FilterReadOnly,
	report.FilterOffline,
	report.FilterResetRecommended,
	report.FilterNonSeq,
	report.FilterNoWritePointer,
}

// parseFilter accepts a report option by number or by name
func parseFilter(s string) (report.Filter, error) {
	if n, err := parseNumber(s); err == nil {
		return report.ParseFilter(n)
	}
	for _, f := range filterNames {
		if strings.EqualFold(s, f.String()) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", report.ErrInvalidFilter, s)
}
