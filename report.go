package watermark

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// DefaultReportPath is where a batch report is written when no path is set.
const DefaultReportPath = "result.json"

// Report is the ordered list of verdicts for a batch.
type Report []WatermarkStatus

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read report %s", path)
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, errors.Wrapf(err, "parse report %s", path)
	}
	return report, nil
}

// WriteReport writes report to path as an indented JSON array. With appendTo
// set, entries already in the file come first; a missing or unreadable file
// counts as empty.
func WriteReport(path string, report Report, appendTo bool) error {
	all := report
	if appendTo {
		existing, err := ReadReport(path)
		if err == nil {
			all = append(existing, report...)
		}
	}
	if all == nil {
		all = Report{}
	}

	data, err := json.MarshalIndent(all, "", "    ")
	if err != nil {
		return errors.Wrap(err, "encode report")
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write report %s", path)
	}
	return nil
}
