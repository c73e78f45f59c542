// Package report renders a match analysis for people: an HTML page of
// interactive charts (go-echarts) and a static PNG of the court with every
// trajectory drawn on it (gonum/plot).
//
// Reports are built from a result.Analysis alone, so they can be produced
// from a stored artifact long after the run.
package report
