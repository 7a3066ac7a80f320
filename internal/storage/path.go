package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildSnapshotPath lays out backup copies of a knowledge snapshot file as
// snapshots/date=YYYY-MM-DD/<name>. One backup per file per day; a later
// backup the same day overwrites the earlier one.
func BuildSnapshotPath(fileName string, at time.Time) (string, error) {
	if err := validatePathComponent(fileName, "snapshot file name"); err != nil {
		return "", err
	}
	ts := at.UTC()
	return path.Join(
		"snapshots",
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fileName,
	), nil
}

// BuildArchivePath lays out correction archives as
// archives/corrections/date=YYYY-MM-DD/corrections-<unix>.parquet.
func BuildArchivePath(at time.Time) string {
	ts := at.UTC()
	return path.Join(
		"archives",
		"corrections",
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("corrections-%d.parquet", ts.Unix()),
	)
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
