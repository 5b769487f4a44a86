package config

import "path/filepath"

// Profile holds per-dataset audit defaults.
// This lets teams keep the label and protected columns for a known
// dataset in the config file instead of repeating them as CLI flags.
type Profile struct {
	// LabelField is the prediction target column.
	LabelField string `yaml:"label,omitempty"`

	// ProtectedFields are the sensitive attribute columns.
	ProtectedFields []string `yaml:"protected,omitempty"`

	// HiddenLayerSizes overrides the network architecture, outermost first.
	HiddenLayerSizes []int `yaml:"hiddenLayers,omitempty"`

	// QidThreshold overrides the discrimination threshold in bits.
	// If zero, the service default is used.
	QidThreshold float64 `yaml:"qidThreshold,omitempty"`

	// EpochCount overrides the number of training epochs.
	// If zero, the service default is used.
	EpochCount int `yaml:"epochs,omitempty"`
}

// File represents the structure of the fairscan configuration file.
type File struct {
	// ServerURL overrides the analysis service address.
	ServerURL string `yaml:"serverURL,omitempty"`

	// ServerCommand is the command that launches the analysis service
	// when it is not already reachable. Empty means never launch.
	ServerCommand string `yaml:"serverCommand,omitempty"`

	// ServerArgs are the arguments passed to ServerCommand.
	ServerArgs []string `yaml:"serverArgs,omitempty"`

	// HistoryDir overrides where the run-history database lives.
	HistoryDir string `yaml:"historyDir,omitempty"`

	// Profiles maps dataset file names to their audit profiles.
	// Keys are dataset base names (e.g. "adult.csv"), so the same
	// profile applies wherever the file lives.
	Profiles map[string]Profile `yaml:"profiles,omitempty"`

	// Defaults contains the profile applied to all datasets unless
	// overridden in the dataset-specific profile.
	Defaults Profile `yaml:"defaults,omitempty"`
}

// GetProfile returns the audit profile for a dataset path.
// It merges the dataset-specific profile with the defaults.
func (cf *File) GetProfile(datasetPath string) Profile {
	result := cf.Defaults

	if profile, ok := cf.Profiles[filepath.Base(datasetPath)]; ok {
		if profile.LabelField != "" {
			result.LabelField = profile.LabelField
		}
		if len(profile.ProtectedFields) > 0 {
			result.ProtectedFields = profile.ProtectedFields
		}
		if len(profile.HiddenLayerSizes) > 0 {
			result.HiddenLayerSizes = profile.HiddenLayerSizes
		}
		if profile.QidThreshold != 0 {
			result.QidThreshold = profile.QidThreshold
		}
		if profile.EpochCount != 0 {
			result.EpochCount = profile.EpochCount
		}
	}

	return result
}
