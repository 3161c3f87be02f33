// Package report renders the job result as a spreadsheet for human review,
// uploaded next to the JSON artifact.
package report

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"video-sentiment-go/internal/types"
)

const (
	overviewSheet   = "Overview"
	utterancesSheet = "Utterances"
)

// BuildWorkbook serializes the aggregate result into an xlsx workbook with an
// overview sheet and one row per utterance.
func BuildWorkbook(res types.AggregateResult) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", overviewSheet); err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	if _, err := f.NewSheet(utterancesSheet); err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}

	if err := writeOverview(f, res); err != nil {
		return nil, err
	}
	if err := writeUtterances(f, res.Utterances); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	return buf.Bytes(), nil
}

func writeOverview(f *excelize.File, res types.AggregateResult) error {
	rows := [][]interface{}{
		{"Job", res.JobID},
		{"Organization", res.OrgID},
		{"Dominant emotion", res.Overall.DominantEmotion},
		{"Dominant sentiment", res.Overall.DominantSentiment},
		{"Escalation risk", res.Overall.EscalationRisk},
		{"Utterances", len(res.Utterances)},
		{},
		{"Emotion distribution"},
	}
	rows = append(rows, distributionRows(res.Overall.EmotionDistribution)...)
	rows = append(rows, []interface{}{}, []interface{}{"Sentiment distribution"})
	rows = append(rows, distributionRows(res.Overall.SentimentDistribution)...)

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("report: %w", err)
		}
		if err := f.SetSheetRow(overviewSheet, cell, &row); err != nil {
			return fmt.Errorf("report: %w", err)
		}
	}
	return nil
}

// distributionRows emits labels in sorted order so the sheet is stable across
// runs.
func distributionRows(dist types.Distribution) [][]interface{} {
	labels := make([]string, 0, len(dist))
	for label := range dist {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	rows := make([][]interface{}, 0, len(labels))
	for _, label := range labels {
		rows = append(rows, []interface{}{label, dist[label]})
	}
	return rows
}

func writeUtterances(f *excelize.File, utts []types.Utterance) error {
	header := []interface{}{"Start (s)", "End (s)", "Text", "Emotion", "Emotion score", "Sentiment", "Sentiment score"}
	if err := f.SetSheetRow(utterancesSheet, "A1", &header); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	for i, u := range utts {
		row := []interface{}{
			u.Start, u.End, u.Text,
			u.Emotion.Label, u.Emotion.Score,
			u.Sentiment.Label, u.Sentiment.Score,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("report: %w", err)
		}
		if err := f.SetSheetRow(utterancesSheet, cell, &row); err != nil {
			return fmt.Errorf("report: %w", err)
		}
	}
	return nil
}
