package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/fairscan/internal/model"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the full report in Markdown format.
func (w *MarkdownWriter) Write(report *model.Report) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeVerdict(md, report)

	if train := report.Train(); train != nil {
		w.writeTraining(md, train)
	}
	if qid := report.Qid(); qid != nil {
		w.writeMetrics(md, qid)
	}
	if search := report.SearchResult(); search != nil {
		w.writeSearch(md, search)
	}
	if debug := report.DebugResult(); debug != nil {
		w.writeLocalization(md, debug)
	}
	if explain := report.ExplainResult(); explain != nil {
		w.writeImportance(md, explain)
	}

	w.writeTimings(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteSummary outputs the verdict summary in Markdown format.
func (w *MarkdownWriter) WriteSummary(summary *Summary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Fairness Audit Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Dataset", "`" + summary.Dataset + "`"},
			{"Score", fmt.Sprintf("%d / 100", summary.Score)},
			{"Status", statusEmoji(summary.Status) + " " + summary.StatusText},
			{"Mean QID", fmt.Sprintf("%.3f bits", summary.MeanQid)},
			{"Discriminatory", fmt.Sprintf("%.1f%%", summary.PctDiscriminatory)},
			{"Mean disparate impact", fmt.Sprintf("%.3f", summary.MeanDisparateImpact)},
			{"Elapsed", strconv.Itoa(summary.TotalElapsedSeconds) + "s"},
			{"Run ID", "`" + summary.RunID + "`"},
		},
	})
	md.PlainText("")

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with run information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.Report) {
	md.H1("Fairness Audit Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Dataset", "`" + report.Dataset.Base() + "`"},
			{"Fingerprint", "`" + report.Dataset.ShortFingerprint() + "`"},
			{"Audited", report.DateAudited.Format("2006-01-02 15:04:05 MST")},
			{"Server", "`" + report.ServerURL + "`"},
			{"Run ID", "`" + report.RunID + "`"},
			{"Total time", strconv.Itoa(report.TotalElapsedSeconds) + "s"},
		},
	})
	md.PlainText("")
}

// writeVerdict writes the score verdict with an appropriate alert.
func (w *MarkdownWriter) writeVerdict(md *markdown.Markdown, report *model.Report) {
	md.H2("Fairness Verdict")
	md.PlainText("")

	qid := report.Qid()

	rows := [][]string{
		{"Score", fmt.Sprintf("**%d / 100**", report.FairnessScore)},
		{"Status", statusEmoji(report.FairnessStatus) + " " + report.FairnessStatusText},
	}
	if qid != nil {
		fourFifths := fmt.Sprintf("satisfied (%.3f)", qid.MeanDisparateImpact)
		if qid.MeanDisparateImpact < model.DisparateImpactFloor {
			fourFifths = fmt.Sprintf("**violated** (%.3f < %.2f)",
				qid.MeanDisparateImpact, model.DisparateImpactFloor)
		}
		rows = append(rows, []string{"Four-fifths rule", fourFifths})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Verdict", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	switch {
	case report.FairnessStatus == model.StatusConcerning:
		md.Cautionf(
			"Strong discrimination signals detected. Fairness score %d is CONCERNING; remediation before deployment is advised.",
			report.FairnessScore,
		)
	case report.FairnessStatus == model.StatusNeedsReview:
		md.Warningf(
			"Moderate discrimination signals detected. Fairness score %d warrants human review.",
			report.FairnessScore,
		)
	case qid != nil && qid.MeanDisparateImpact < model.DisparateImpactFloor:
		md.Importantf(
			"Mean disparate impact %.3f falls below the four-fifths threshold.",
			qid.MeanDisparateImpact,
		)
	default:
		md.Tip("No substantial discrimination signal detected.")
	}
	md.PlainText("")

	if qid != nil && qid.NumAnalyzed > 0 {
		w.writePieChart(md, qid)
	}
}

// writePieChart writes a mermaid pie chart of the sample discrimination share.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, qid *model.QidMetrics) {
	fair := qid.NumAnalyzed - qid.NumDiscriminatory
	if fair < 0 {
		fair = 0
	}

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Sample Discrimination Share"),
		piechart.WithShowData(true),
	)
	if qid.NumDiscriminatory > 0 {
		chart.LabelAndIntValue("Discriminatory", uint64(qid.NumDiscriminatory))
	}
	if fair > 0 {
		chart.LabelAndIntValue("Fair", uint64(fair))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeTraining writes the model training section.
func (w *MarkdownWriter) writeTraining(md *markdown.Markdown, train *model.TrainResult) {
	md.H2("Training")
	md.PlainText("")

	info := train.DatasetInfo
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Accuracy", fmt.Sprintf("%.2f%%", train.Accuracy*100)},
			{"Parameters", strconv.Itoa(train.NumParameters)},
			{"Architecture", formatArchitecture(train.HiddenLayers)},
			{"Epochs", strconv.Itoa(train.TrainingHistory.EpochsTrained)},
			{"Samples", fmt.Sprintf("%d (train %d / val %d / test %d)",
				info.NumTotal, info.NumTrain, info.NumVal, info.NumTest)},
		},
	})
	md.PlainText("")
}

// writeMetrics writes the discrimination metrics section.
func (w *MarkdownWriter) writeMetrics(md *markdown.Markdown, qid *model.QidMetrics) {
	md.H2("Discrimination Metrics")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Mean QID", fmt.Sprintf("%.3f bits", qid.MeanQid)},
			{"Max QID", fmt.Sprintf("%.3f bits", qid.MaxQid)},
			{"Discriminatory samples", fmt.Sprintf("%d of %d (%.1f%%)",
				qid.NumDiscriminatory, qid.NumAnalyzed, qid.PctDiscriminatory)},
			{"Mean disparate impact", fmt.Sprintf("%.3f", qid.MeanDisparateImpact)},
		},
	})
	md.PlainText("")
}

// writeSearch writes the discriminatory-instance search section.
func (w *MarkdownWriter) writeSearch(md *markdown.Markdown, search *model.SearchResult) {
	md.H2("Discriminatory Instance Search")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Iterations", strconv.Itoa(search.NumIterations)},
			{"Instances found", strconv.Itoa(search.Found())},
			{"Max QID found", fmt.Sprintf("%.3f bits", search.MaxQidFound)},
		},
	})
	md.PlainText("")

	if len(search.DiscriminatoryInstances) > 0 {
		rows := make([][]string, len(search.DiscriminatoryInstances))
		for i, instance := range search.DiscriminatoryInstances {
			rows[i] = []string{
				strconv.Itoa(instance.InstanceIdx),
				fmt.Sprintf("%.3f", instance.Qid),
			}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Instance", "QID (bits)"},
			Rows:   rows,
		})
		md.PlainText("")
	}
}

// writeLocalization writes the bias localization section.
func (w *MarkdownWriter) writeLocalization(md *markdown.Markdown, debug *model.DebugResult) {
	md.H2("Bias Localization")
	md.PlainText("")

	if len(debug.LayerAnalysis.Layers) > 0 {
		rows := make([][]string, len(debug.LayerAnalysis.Layers))
		for i, layer := range debug.LayerAnalysis.Layers {
			name := layer.LayerName
			if name == "" {
				name = "layer " + strconv.Itoa(layer.LayerIdx)
			}
			if layer.LayerIdx == debug.LayerAnalysis.BiasedLayer.LayerIdx {
				name = "**" + name + "**"
			}
			rows[i] = []string{name, fmt.Sprintf("%.3f", layer.CausalEffect)}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Layer", "Causal effect"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	biased := debug.LayerAnalysis.BiasedLayer
	name := biased.LayerName
	if name == "" {
		name = "layer " + strconv.Itoa(biased.LayerIdx)
	}
	md.PlainTextf("Most biased: **%s** (causal effect %.3f). Top neurons: %s.",
		name, biased.CausalEffect, formatNeurons(debug.NeuronAnalysis.TopNeurons))
	md.PlainText("")
}

// writeImportance writes the ranked feature-importance section.
func (w *MarkdownWriter) writeImportance(md *markdown.Markdown, explain *model.ExplainResult) {
	names, values := explain.GlobalImportance()
	if len(names) == 0 {
		return
	}

	md.H2("Feature Importance")
	md.PlainText("")

	ranked := rankImportance(names, values, defaultMaxFeatures)
	rows := make([][]string, len(ranked))
	for i, f := range ranked {
		rows[i] = []string{
			strconv.Itoa(i + 1),
			"`" + f.name + "`",
			fmt.Sprintf("%.3f", f.value),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Rank", "Feature", "Importance"},
		Rows:   rows,
	})
	md.PlainText("")

	// Local explanations as collapsible details per instance.
	if explain.Lime != nil {
		for _, local := range explain.Lime.Explanations {
			if len(local.FeatureWeights) == 0 {
				continue
			}
			lines := make([]string, len(local.FeatureWeights))
			for i, weight := range local.FeatureWeights {
				lines[i] = fmt.Sprintf("%s: %+.3f", weight.Condition, weight.Weight)
			}
			md.Details(
				fmt.Sprintf("Instance %d local explanation", local.InstanceIdx),
				strings.Join(lines, "<br>"),
			)
		}
		md.PlainText("")
	}
}

// writeTimings writes the per-stage and total timing section.
func (w *MarkdownWriter) writeTimings(md *markdown.Markdown, report *model.Report) {
	md.H2("Stage Timings")
	md.PlainText("")

	rows := make([][]string, 0, model.StageCount+1)
	for _, kind := range model.Stages() {
		rows = append(rows, []string{kind.Label(), strconv.Itoa(report.StageElapsed(kind)) + "s"})
	}
	rows = append(rows, []string{"**Total**", "**" + strconv.Itoa(report.TotalElapsedSeconds) + "s**"})

	md.Table(markdown.TableSet{
		Header: []string{"Stage", "Elapsed"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [fairscan](https://github.com/nao1215/fairscan)*")
}

// statusEmoji returns a colored indicator for the verdict band.
func statusEmoji(status model.FairnessStatus) string {
	switch status {
	case model.StatusGood:
		return "🟢"
	case model.StatusNeedsReview:
		return "🟡"
	case model.StatusConcerning:
		return "🔴"
	default:
		return "⚪"
	}
}
