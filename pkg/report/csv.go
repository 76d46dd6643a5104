package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"ksmeta/pkg/models"
)

// Header is the fixed CSV column set, one row per input record.
var Header = []string{
	"row",
	"source_url",
	"status",
	"reason",
	"video_id",
	"long_form_url",
	"caption",
	"publish_time",
	"like_count",
	"comment_count",
	"collection_count",
	"view_count",
	"fan_count",
	"author_name",
	"author_id",
}

// WriteCSV renders results in the order given, which the pipeline guarantees
// is input order. longForm reconstructs the long-form URL for a canonical
// identifier; rows without a metadata record get empty metadata cells.
func WriteCSV(w io.Writer, results []models.ProcessingResult, longForm func(videoID string) string) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for i := range results {
		if err := cw.Write(record(&results[i], longForm)); err != nil {
			return fmt.Errorf("writing CSV row %d: %w", results[i].Row, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func record(res *models.ProcessingResult, longForm func(string) string) []string {
	row := []string{
		strconv.Itoa(res.Row),
		res.SourceURL,
		res.Status.String(),
		res.Reason,
		res.VideoID,
		longForm(res.VideoID),
	}

	rec := res.Record
	if rec == nil {
		// Failed rows carry no metadata; keep the cells blank rather
		// than rendering zeroes
		return append(row, make([]string, len(Header)-len(row))...)
	}
	return append(row,
		rec.Caption,
		rec.PublishTime,
		strconv.FormatInt(rec.LikeCount, 10),
		strconv.FormatInt(rec.CommentCount, 10),
		strconv.FormatInt(rec.CollectionCount, 10),
		strconv.FormatInt(rec.ViewCount, 10),
		strconv.FormatInt(rec.FanCount, 10),
		rec.AuthorName,
		rec.AuthorID,
	)
}
