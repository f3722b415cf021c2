// Package cobertura reads Cobertura XML coverage reports, the format
// produced by cargo-tarpaulin's --out Xml and by most coverage tools.
package cobertura

import (
	"encoding/xml"
	"fmt"
	"io"
)

// Report is the root <coverage> element of a Cobertura document.
type Report struct {
	XMLName      xml.Name  `xml:"coverage"`
	LineRate     float64   `xml:"line-rate,attr"`
	BranchRate   float64   `xml:"branch-rate,attr"`
	LinesCovered int64     `xml:"lines-covered,attr"`
	LinesValid   int64     `xml:"lines-valid,attr"`
	Timestamp    int64     `xml:"timestamp,attr"`
	Packages     []Package `xml:"packages>package"`
}

// Package groups the classes of a single source package.
type Package struct {
	Name     string  `xml:"name,attr"`
	LineRate float64 `xml:"line-rate,attr"`
	Classes  []Class `xml:"classes>class"`
}

// Class covers a single source file.
type Class struct {
	Name     string  `xml:"name,attr"`
	Filename string  `xml:"filename,attr"`
	LineRate float64 `xml:"line-rate,attr"`
	Lines    []Line  `xml:"lines>line"`
}

// Line records the hit count of one executable line.
type Line struct {
	Number int   `xml:"number,attr"`
	Hits   int64 `xml:"hits,attr"`
}

// Parse decodes a Cobertura XML document.
func Parse(r io.Reader) (*Report, error) {
	var report Report
	if err := xml.NewDecoder(r).Decode(&report); err != nil {
		return nil, fmt.Errorf("decoding cobertura report: %w", err)
	}
	return &report, nil
}

// TotalLineRate computes the covered/valid ratio from the report's line
// counters, falling back to the line-rate attribute when the counters are
// absent. Some emitters only populate one of the two.
func (r *Report) TotalLineRate() float64 {
	if r.LinesValid > 0 {
		return float64(r.LinesCovered) / float64(r.LinesValid)
	}
	return r.LineRate
}
