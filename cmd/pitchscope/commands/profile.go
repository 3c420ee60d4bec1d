package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/haivivi/pitchscope/pkg/cli"
)

// pipelineFlags maps flag names to profile keys. Flags left unset keep the
// context profile value.
var pipelineFlags = map[string]string{
	"backend":       "backend",
	"model":         "model",
	"capacity":      "capacity",
	"device":        "device",
	"threads":       "threads",
	"warmup":        "warmup",
	"engine":        "engine",
	"throttle":      "throttle",
	"sink-capacity": "sink_capacity",
	"store-dir":     "store_dir",
	"input-device":  "input_device",
	"listen":        "listen",
}

// addPipelineFlags registers the profile override flags on fs. Values are
// read back by name in resolveProfile, so the variables are throwaway.
func addPipelineFlags(fs *pflag.FlagSet) {
	fs.String("backend", "", "backend: kernel (ncnn) or graph (ONNX Runtime)")
	fs.String("model", "", "model location: path, file://, s3:// or https:// URI")
	fs.String("capacity", "", "model size: tiny, small, medium, large, full")
	fs.String("device", "", "device hint: preferred or fallback")
	fs.StringSlice("provider", nil, "graph execution providers, preferred first (e.g. coreml,cpu)")
	fs.Int("threads", 0, "inference threads (0: backend default)")
	fs.Bool("warmup", false, "run one silent frame at init")
	fs.String("engine", "", "resampler engine: soxr or polyphase")
	fs.String("throttle", "", "minimum interval between points, e.g. 20ms")
	fs.Int("sink-capacity", 0, "points kept in the display window")
	fs.String("store-dir", "", "directory for recorded sessions and the model cache")
}

// resolveProfile merges the selected context's profile with the flags set
// on cmd and fills defaults.
func resolveProfile(cmd *cobra.Command) (cli.Profile, error) {
	cfg, err := GetConfig()
	if err != nil {
		return cli.Profile{}, err
	}
	ctx, err := cfg.ResolveContext(contextName)
	if err != nil {
		return cli.Profile{}, err
	}
	p := ctx.Profile

	var errs []error
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if f.Name == "provider" {
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				p.Providers = sv.GetSlice()
			}
			return
		}
		key, ok := pipelineFlags[f.Name]
		if !ok {
			return
		}
		if err := p.Set(key, f.Value.String()); err != nil {
			errs = append(errs, fmt.Errorf("--%s: %w", f.Name, err))
		}
	})
	if len(errs) > 0 {
		return cli.Profile{}, errs[0]
	}
	return p.WithDefaults(), nil
}

// storeDirs returns the session store and model cache directories for p.
func storeDirs(p cli.Profile) (sessions, modelCache string, err error) {
	if p.StoreDir != "" {
		return filepath.Join(p.StoreDir, "sessions"), filepath.Join(p.StoreDir, "cache"), nil
	}
	paths, err := cli.NewPaths(appName)
	if err != nil {
		return "", "", err
	}
	return paths.SessionsDir(), paths.ModelCacheDir(), nil
}

// modelDir is where bare model names resolve.
func modelDir(p cli.Profile) (string, error) {
	if p.StoreDir != "" {
		return filepath.Join(p.StoreDir, "models"), nil
	}
	paths, err := cli.NewPaths(appName)
	if err != nil {
		return "", err
	}
	return paths.ModelDir(), nil
}
