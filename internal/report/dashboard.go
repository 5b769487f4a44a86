package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/nao1215/fairscan/internal/model"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// defaultMaxFeatures is how many feature-importance rows the dashboard
// shows unless configured otherwise.
const defaultMaxFeatures = 10

// TextWriter outputs human-readable audit dashboards.
// This format is designed for terminal display with a score verdict and
// clear section formatting.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors by default because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
// 3. Color can be added as an option later if needed
type TextWriter struct {
	baseWriter

	// verbose enables additional detail in the output.
	verbose bool

	// maxFeatures caps the feature-importance rows shown.
	maxFeatures int

	// printer formats grouped numbers for sample and parameter counts.
	printer *message.Printer
}

// TextWriterOption configures a TextWriter.
type TextWriterOption func(*TextWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) TextWriterOption {
	return func(w *TextWriter) {
		w.verbose = verbose
	}
}

// WithMaxFeatures caps the feature-importance rows shown.
// Values below one are ignored.
func WithMaxFeatures(n int) TextWriterOption {
	return func(w *TextWriter) {
		if n > 0 {
			w.maxFeatures = n
		}
	}
}

// NewTextWriter creates a TextWriter that outputs to the given writer.
func NewTextWriter(output io.Writer, opts ...TextWriterOption) *TextWriter {
	w := &TextWriter{
		baseWriter:  newBaseWriter(output),
		verbose:     false,
		maxFeatures: defaultMaxFeatures,
		printer:     message.NewPrinter(language.English),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the full report as a terminal dashboard.
func (w *TextWriter) Write(report *model.Report) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeVerdict(&sb, report)

	if train := report.Train(); train != nil {
		w.writeTraining(&sb, train)
	}
	if qid := report.Qid(); qid != nil {
		w.writeMetrics(&sb, qid)
	}
	if search := report.SearchResult(); search != nil {
		w.writeSearch(&sb, search)
	}
	if debug := report.DebugResult(); debug != nil {
		w.writeLocalization(&sb, debug)
	}
	if explain := report.ExplainResult(); explain != nil {
		w.writeImportance(&sb, explain)
	}

	w.writeTimings(&sb, report)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// WriteSummary outputs the compact verdict block.
func (w *TextWriter) WriteSummary(summary *Summary) (int, error) {
	var sb strings.Builder

	dataset := summary.Dataset
	if summary.Fingerprint != "" {
		dataset = fmt.Sprintf("%s (%s)", summary.Dataset, summary.Fingerprint)
	}
	sb.WriteString(fmt.Sprintf("%s  score %d/100  [%s] %s\n",
		dataset, summary.Score, statusIndicator(summary.Status), summary.StatusText))
	sb.WriteString(fmt.Sprintf("  mean QID %.3f bits, %.1f%% discriminatory, disparate impact %.3f\n",
		summary.MeanQid, summary.PctDiscriminatory, summary.MeanDisparateImpact))
	sb.WriteString(fmt.Sprintf("  audited %s in %ds, run %s\n",
		summary.DateAudited.Format("2006-01-02 15:04:05 MST"),
		summary.TotalElapsedSeconds, summary.RunID))

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the report header with run information.
func (w *TextWriter) writeHeader(sb *strings.Builder, report *model.Report) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                        FAIRNESS AUDIT REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	dataset := report.Dataset.Base()
	if fp := report.Dataset.ShortFingerprint(); fp != "" {
		dataset = fmt.Sprintf("%s (sha3: %s)", dataset, fp)
	}
	sb.WriteString(fmt.Sprintf("Dataset:     %s\n", dataset))
	sb.WriteString(fmt.Sprintf("Audited:     %s\n", report.DateAudited.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(fmt.Sprintf("Server:      %s\n", report.ServerURL))
	sb.WriteString(fmt.Sprintf("Run ID:      %s\n", report.RunID))
	sb.WriteString("\n")
}

// writeVerdict writes the fairness score and verdict section.
func (w *TextWriter) writeVerdict(sb *strings.Builder, report *model.Report) {
	w.writeSectionRule(sb, "FAIRNESS VERDICT")

	sb.WriteString(fmt.Sprintf("  Score:   %d / 100\n", report.FairnessScore))
	sb.WriteString(fmt.Sprintf("  Status:  [%s] %s\n",
		statusIndicator(report.FairnessStatus), report.FairnessStatusText))

	if qid := report.Qid(); qid != nil {
		if qid.MeanDisparateImpact < model.DisparateImpactFloor {
			sb.WriteString(fmt.Sprintf("  Four-fifths rule: VIOLATED (mean disparate impact %.3f < %.2f)\n",
				qid.MeanDisparateImpact, model.DisparateImpactFloor))
		} else {
			sb.WriteString(fmt.Sprintf("  Four-fifths rule: satisfied (mean disparate impact %.3f)\n",
				qid.MeanDisparateImpact))
		}
	}
	sb.WriteString("\n")
}

// writeTraining writes the model training section.
func (w *TextWriter) writeTraining(sb *strings.Builder, train *model.TrainResult) {
	w.writeSectionRule(sb, "TRAINING")

	sb.WriteString(fmt.Sprintf("  Accuracy:      %.2f%%\n", train.Accuracy*100))
	sb.WriteString(fmt.Sprintf("  Parameters:    %s\n", w.groupInt(train.NumParameters)))
	sb.WriteString(fmt.Sprintf("  Architecture:  %s\n", formatArchitecture(train.HiddenLayers)))
	sb.WriteString(fmt.Sprintf("  Epochs:        %d\n", train.TrainingHistory.EpochsTrained))

	info := train.DatasetInfo
	sb.WriteString(fmt.Sprintf("  Samples:       %s (train %s / val %s / test %s)\n",
		w.groupInt(info.NumTotal), w.groupInt(info.NumTrain),
		w.groupInt(info.NumVal), w.groupInt(info.NumTest)))

	if w.verbose {
		sb.WriteString(fmt.Sprintf("  Final losses:  train %.4f / val %.4f\n",
			train.TrainingHistory.FinalTrainLoss, train.TrainingHistory.FinalValLoss))
	}
	sb.WriteString("\n")
}

// writeMetrics writes the discrimination metrics section.
func (w *TextWriter) writeMetrics(sb *strings.Builder, qid *model.QidMetrics) {
	w.writeSectionRule(sb, "DISCRIMINATION METRICS")

	sb.WriteString(fmt.Sprintf("  Mean QID:               %.3f bits\n", qid.MeanQid))
	sb.WriteString(fmt.Sprintf("  Max QID:                %.3f bits\n", qid.MaxQid))
	sb.WriteString(fmt.Sprintf("  Discriminatory:         %d of %d samples (%.1f%%)\n",
		qid.NumDiscriminatory, qid.NumAnalyzed, qid.PctDiscriminatory))
	sb.WriteString(fmt.Sprintf("  Mean disparate impact:  %.3f\n", qid.MeanDisparateImpact))
	sb.WriteString("\n")
}

// writeSearch writes the discriminatory-instance search section.
func (w *TextWriter) writeSearch(sb *strings.Builder, search *model.SearchResult) {
	w.writeSectionRule(sb, "DISCRIMINATORY INSTANCE SEARCH")

	sb.WriteString(fmt.Sprintf("  Iterations:     %d\n", search.NumIterations))
	sb.WriteString(fmt.Sprintf("  Found:          %d discriminatory instances\n", search.Found()))
	sb.WriteString(fmt.Sprintf("  Max QID found:  %.3f bits\n", search.MaxQidFound))

	if w.verbose && len(search.DiscriminatoryInstances) > 0 {
		sb.WriteString("\n")
		for i, instance := range search.DiscriminatoryInstances {
			if i >= 5 {
				sb.WriteString(fmt.Sprintf("    ... and %d more\n", len(search.DiscriminatoryInstances)-i))
				break
			}
			sb.WriteString(fmt.Sprintf("    #%d  QID %.3f bits\n", instance.InstanceIdx, instance.Qid))
		}
	}
	sb.WriteString("\n")
}

// writeLocalization writes the bias localization section.
func (w *TextWriter) writeLocalization(sb *strings.Builder, debug *model.DebugResult) {
	w.writeSectionRule(sb, "BIAS LOCALIZATION")

	biased := debug.LayerAnalysis.BiasedLayer
	name := biased.LayerName
	if name == "" {
		name = fmt.Sprintf("layer %d", biased.LayerIdx)
	}
	sb.WriteString(fmt.Sprintf("  Biased layer:  %s (causal effect %.3f)\n", name, biased.CausalEffect))
	sb.WriteString(fmt.Sprintf("  Top neurons:   %s\n", formatNeurons(debug.NeuronAnalysis.TopNeurons)))

	if w.verbose && len(debug.LayerAnalysis.Layers) > 0 {
		sb.WriteString("\n")
		for _, layer := range debug.LayerAnalysis.Layers {
			name := layer.LayerName
			if name == "" {
				name = fmt.Sprintf("layer %d", layer.LayerIdx)
			}
			sb.WriteString(fmt.Sprintf("    %-24s %.3f\n", name, layer.CausalEffect))
		}
	}
	sb.WriteString("\n")
}

// writeImportance writes the ranked feature-importance section.
func (w *TextWriter) writeImportance(sb *strings.Builder, explain *model.ExplainResult) {
	names, values := explain.GlobalImportance()
	if len(names) == 0 {
		return
	}

	w.writeSectionRule(sb, "FEATURE IMPORTANCE")

	source := "LIME aggregated weights"
	if explain.Shap != nil {
		source = "SHAP global importance"
	}
	sb.WriteString(fmt.Sprintf("  Source: %s\n\n", source))

	for i, f := range rankImportance(names, values, w.maxFeatures) {
		sb.WriteString(fmt.Sprintf("  %2d. %-20s %.3f\n", i+1, f.name, f.value))
	}
	sb.WriteString("\n")
}

// writeTimings writes the per-stage and total timing section.
func (w *TextWriter) writeTimings(sb *strings.Builder, report *model.Report) {
	w.writeSectionRule(sb, "STAGE TIMINGS")

	for _, kind := range model.Stages() {
		sb.WriteString(fmt.Sprintf("  %-34s %ds\n", kind.Label(), report.StageElapsed(kind)))
	}
	sb.WriteString(fmt.Sprintf("  %-34s %ds\n", "Total", report.TotalElapsedSeconds))
	sb.WriteString("\n")
}

// writeSectionRule writes a section title between horizontal rules.
func (w *TextWriter) writeSectionRule(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

// writeFooter writes the report footer.
func (w *TextWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by fairscan\n")
	sb.WriteString("https://github.com/nao1215/fairscan\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

// groupInt formats an integer with locale digit grouping.
func (w *TextWriter) groupInt(n int) string {
	return w.printer.Sprintf("%d", n)
}

// statusIndicator returns a visual indicator for the verdict band.
func statusIndicator(status model.FairnessStatus) string {
	switch status {
	case model.StatusGood:
		return "+"
	case model.StatusNeedsReview:
		return "!"
	case model.StatusConcerning:
		return "!!!"
	default:
		return "?"
	}
}

// formatArchitecture joins hidden layer sizes as "64-32-16".
// An empty architecture means the service default was used.
func formatArchitecture(layers []int) string {
	if len(layers) == 0 {
		return "service default"
	}
	parts := make([]string, len(layers))
	for i, size := range layers {
		parts[i] = strconv.Itoa(size)
	}
	return strings.Join(parts, "-")
}

// formatNeurons joins neuron indices as "3, 7".
func formatNeurons(neurons []int) string {
	if len(neurons) == 0 {
		return "none identified"
	}
	parts := make([]string, len(neurons))
	for i, idx := range neurons {
		parts[i] = strconv.Itoa(idx)
	}
	return strings.Join(parts, ", ")
}

// rankedFeature pairs a feature name with its importance value.
type rankedFeature struct {
	name  string
	value float64
}

// rankImportance sorts features by descending importance and caps the
// result at max entries. Ties keep the service's feature order.
func rankImportance(names []string, values []float64, max int) []rankedFeature {
	count := len(names)
	if len(values) < count {
		count = len(values)
	}

	ranked := make([]rankedFeature, count)
	for i := 0; i < count; i++ {
		ranked[i] = rankedFeature{name: names[i], value: values[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].value > ranked[j].value
	})

	if max > 0 && len(ranked) > max {
		ranked = ranked[:max]
	}
	return ranked
}
