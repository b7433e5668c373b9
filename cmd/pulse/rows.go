package main

import (
	"strconv"

	"mercator-hq/pulse/pkg/aggregator"
	"mercator-hq/pulse/pkg/writer"
)

// endpointRows renders endpoint summaries as a table.
type endpointRows []aggregator.EndpointSummary

func (r endpointRows) Headers() []string {
	return []string{"ENDPOINT", "CALLS", "ERRORS", "ERROR%", "AVG", "P50", "P95", "P99", "MAX", "CALLERS"}
}

func (r endpointRows) Rows() [][]string {
	rows := make([][]string, 0, len(r))
	for _, s := range r {
		rows = append(rows, []string{
			s.Endpoint,
			strconv.FormatInt(s.TotalCount, 10),
			strconv.FormatInt(s.ErrorCount, 10),
			strconv.FormatFloat(s.ErrorRate*100, 'f', 2, 64),
			strconv.FormatFloat(s.AvgLatency, 'f', 1, 64),
			strconv.FormatInt(s.P50, 10),
			strconv.FormatInt(s.P95, 10),
			strconv.FormatInt(s.P99, 10),
			strconv.FormatInt(s.MaxLatency, 10),
			strconv.FormatUint(s.UniqueCallers, 10),
		})
	}
	return rows
}

// errorRows renders the daily error ranking.
type errorRows []writer.ErrorCount

func (r errorRows) Headers() []string { return []string{"ENDPOINT", "ERRORS"} }

func (r errorRows) Rows() [][]string {
	rows := make([][]string, 0, len(r))
	for _, e := range r {
		rows = append(rows, []string{e.Endpoint, strconv.FormatInt(e.Errors, 10)})
	}
	return rows
}
