package delta

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	syncErrors "github.com/c0deZ3R0/ngw-sync-kit/errors"
	"github.com/c0deZ3R0/ngw-sync-kit/schema"
)

// CheckResult is a decoded answer of the changes check endpoint.
type CheckResult struct {
	Epoch        int64
	Target       int64
	Timestamp    time.Time
	FetchURL     string
	GeometryType string
	SRSID        int64
	Fields       schema.Fields
}

type srsRef struct {
	ID int64 `json:"id"`
}

type checkAnswer struct {
	Epoch        *int64          `json:"epoch"`
	Target       *int64          `json:"target"`
	Tstamp       string          `json:"tstamp"`
	Fetch        string          `json:"fetch"`
	GeometryType string          `json:"geometry_type"`
	SRS          *srsRef         `json:"srs"`
	Fields       json.RawMessage `json:"fields"`
}

// Server timestamps may come without a zone; those are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
}

// CheckURL builds the changes check request for a resource.
func CheckURL(resourceID, epoch, version int64) string {
	params := url.Values{}
	params.Set("epoch", strconv.FormatInt(epoch, 10))
	params.Set("initial", strconv.FormatInt(version, 10))
	return fmt.Sprintf("/api/resource/%d/feature/changes/check?%s", resourceID, params.Encode())
}

// ParseCheck decodes a check answer. Missing keys fail with MalformedPayload.
func ParseCheck(raw json.RawMessage) (*CheckResult, error) {
	malformed := func(format string, args ...any) error {
		return syncErrors.NewMalformedPayloadError(syncErrors.OpCheck, fmt.Errorf(format, args...))
	}

	var answer checkAnswer
	if err := json.Unmarshal(raw, &answer); err != nil {
		return nil, malformed("invalid check answer: %v", err)
	}

	switch {
	case answer.Epoch == nil:
		return nil, malformed("check answer has no epoch")
	case answer.Target == nil:
		return nil, malformed("check answer has no target version")
	case answer.Fetch == "":
		return nil, malformed("check answer has no fetch url")
	case answer.SRS == nil:
		return nil, malformed("check answer has no srs")
	case len(answer.Fields) == 0:
		return nil, malformed("check answer has no fields")
	}

	tstamp, err := parseTimestamp(answer.Tstamp)
	if err != nil {
		return nil, malformed("invalid tstamp %q", answer.Tstamp)
	}

	fields, err := schema.FromJSON(answer.Fields)
	if err != nil {
		return nil, err
	}

	return &CheckResult{
		Epoch:        *answer.Epoch,
		Target:       *answer.Target,
		Timestamp:    tstamp,
		FetchURL:     answer.Fetch,
		GeometryType: answer.GeometryType,
		SRSID:        answer.SRS.ID,
		Fields:       fields,
	}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
