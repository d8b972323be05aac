package dvrip

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the wall-clock format the firmware speaks. The camera has
// no timezone concept; times are whatever the camera clock says.
const TimeLayout = "2006-01-02 15:04:05"

type FileKind string

const (
	// KindImageMarker is a camera-reported "jpg" index entry. It marks an
	// alarm time; its payload is frequently not a real JPEG.
	KindImageMarker FileKind = "jpg"
	// KindMotionClip is an "h264" motion recording.
	KindMotionClip FileKind = "h264"
)

// event filter per kind: markers are indexed under all events, clips under
// motion only.
func (k FileKind) queryEvent() string {
	if k == KindMotionClip {
		return "M"
	}
	return "*"
}

// FileDescriptor is one row of the camera's file index. Immutable once
// returned from a query.
type FileDescriptor struct {
	Path      string
	Kind      FileKind
	BeginTime time.Time
	EndTime   time.Time
	SizeBytes int64
}

type QueryParams struct {
	Begin time.Time
	End   time.Time
	Kind  FileKind
}

// Firmware caps one OPFileQuery response at 64 rows.
const queryPageCap = 64

type fileQueryRow struct {
	FileName   string `json:"FileName"`
	BeginTime  string `json:"BeginTime"`
	EndTime    string `json:"EndTime"`
	FileLength string `json:"FileLength"`
}

type fileQueryResponse struct {
	Ret         int `json:"Ret"`
	OPFileQuery struct {
		FileList []fileQueryRow `json:"FileList"`
	} `json:"OPFileQuery"`
	// Some firmwares put the list at the top level.
	FileList []fileQueryRow `json:"FileList"`
}

// QueryFiles returns index rows for one kind within [Begin, End], ascending
// by BeginTime. Pagination is transparent: when a page comes back at the
// firmware cap, the query is reissued from just past the last row. An empty
// range yields an empty slice, not an error.
func (s *Session) QueryFiles(ctx context.Context, q QueryParams) ([]FileDescriptor, error) {
	if !q.End.After(q.Begin) {
		return nil, nil
	}

	var out []FileDescriptor
	seen := make(map[string]struct{})
	cursor := q.Begin

	for {
		rows, err := s.queryPage(ctx, cursor, q.End, q.Kind)
		if err != nil {
			return nil, err
		}

		var lastBegin time.Time
		for _, r := range rows {
			fd, ok := parseRow(r, q.Kind)
			if !ok {
				continue
			}
			lastBegin = fd.BeginTime
			if _, dup := seen[fd.Path]; dup {
				continue
			}
			seen[fd.Path] = struct{}{}
			out = append(out, fd)
		}

		if len(rows) < queryPageCap || lastBegin.IsZero() {
			break
		}
		next := lastBegin.Add(time.Second)
		if !next.After(cursor) || !next.Before(q.End) {
			break
		}
		cursor = next
	}

	sort.Slice(out, func(i, j int) bool { return out[i].BeginTime.Before(out[j].BeginTime) })
	return out, nil
}

func (s *Session) queryPage(ctx context.Context, begin, end time.Time, kind FileKind) ([]fileQueryRow, error) {
	body := map[string]interface{}{
		"Name":      "OPFileQuery",
		"SessionID": s.hexID(),
		"OPFileQuery": map[string]interface{}{
			"BeginTime":      begin.Format(TimeLayout),
			"EndTime":        end.Format(TimeLayout),
			"Channel":        0,
			"DriverTypeMask": "0x0000FFFF",
			"Event":          kind.queryEvent(),
			"Type":           string(kind),
			"StreamType":     "Main",
		},
	}

	raw, err := s.call(ctx, msgFileQuery, body)
	if err != nil {
		return nil, err
	}

	var resp fileQueryResponse
	if err := decodeJSON(raw, &resp); err != nil {
		return nil, err
	}
	if len(resp.OPFileQuery.FileList) > 0 {
		return resp.OPFileQuery.FileList, nil
	}
	return resp.FileList, nil
}

// RecentMarkers walks backwards from end in small windows collecting up to
// want marker rows, newest first. When a window hits the page cap it is
// halved and retried on the same end so truncated windows cannot swallow
// rows; sparse windows are widened to cut round trips. This dodges the
// firmware's habit of silently dropping results on wide queries.
func (s *Session) RecentMarkers(ctx context.Context, end time.Time, want int, lookback time.Duration) ([]FileDescriptor, error) {
	if want <= 0 {
		return nil, nil
	}
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}

	const (
		minChunk = time.Minute
		maxChunk = 4 * time.Hour
	)
	chunk := 10 * time.Minute
	oldest := end.Add(-lookback)

	var out []FileDescriptor
	seen := make(map[string]struct{})

	cursorEnd := end
	for cursorEnd.After(oldest) && len(out) < want {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		begin := cursorEnd.Add(-chunk)
		if begin.Before(oldest) {
			begin = oldest
		}

		rows, err := s.queryPage(ctx, begin, cursorEnd, KindImageMarker)
		if err != nil {
			return nil, err
		}

		if len(rows) >= queryPageCap-4 && chunk > minChunk {
			chunk = chunk / 2
			if chunk < minChunk {
				chunk = minChunk
			}
			continue
		}

		for _, r := range rows {
			fd, ok := parseRow(r, KindImageMarker)
			if !ok {
				continue
			}
			if _, dup := seen[fd.Path]; dup {
				continue
			}
			seen[fd.Path] = struct{}{}
			out = append(out, fd)
		}

		cursorEnd = begin
		if len(rows) < want/3+1 && chunk < maxChunk {
			chunk *= 2
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].BeginTime.After(out[j].BeginTime) })
	if len(out) > want {
		out = out[:want]
	}
	return out, nil
}

func parseRow(r fileQueryRow, kind FileKind) (FileDescriptor, bool) {
	begin, err := time.Parse(TimeLayout, r.BeginTime)
	if err != nil {
		return FileDescriptor{}, false
	}
	end, err := time.Parse(TimeLayout, r.EndTime)
	if err != nil {
		end = begin
	}
	return FileDescriptor{
		Path:      r.FileName,
		Kind:      kind,
		BeginTime: begin,
		EndTime:   end,
		SizeBytes: parseFileLength(r.FileLength),
	}, r.FileName != ""
}

// parseFileLength decodes the index size field. The firmware reports it as
// a hex string of kilobytes.
func parseFileLength(v string) int64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(strings.ToLower(v), "0x"), 16, 64)
	if err != nil {
		return 0
	}
	return n * 1024
}

func (fd FileDescriptor) String() string {
	return fmt.Sprintf("%s [%s %s..%s]", fd.Path, fd.Kind,
		fd.BeginTime.Format(TimeLayout), fd.EndTime.Format(TimeLayout))
}
