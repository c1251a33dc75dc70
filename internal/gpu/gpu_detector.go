// Package gpu probes for a CUDA device so the separation and recognition tools can be pointed at it.
package gpu

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Device names understood by demucs and whisper
const (
	DeviceAuto = "auto"
	DeviceCPU  = "cpu"
	DeviceCUDA = "cuda"
)

// QueryFunc runs a probe command and returns its stdout
type QueryFunc func(name string, args ...string) ([]byte, error)

// GPUDetector handles GPU detection and device selection
type GPUDetector struct {
	logger      *zap.Logger
	query       QueryFunc
	lookupEnv   func(string) (string, bool)
	toolkitDirs []string
}

// GPUInfo contains information about available GPU devices
type GPUInfo struct {
	Available     bool
	DeviceCount   int
	DeviceName    string
	DriverVersion string
	Source        string
}

// NewGPUDetector creates a new GPU detector instance
func NewGPUDetector(logger *zap.Logger) *GPUDetector {
	return &GPUDetector{
		logger: logger,
		query: func(name string, args ...string) ([]byte, error) {
			return exec.Command(name, args...).Output()
		},
		lookupEnv:   os.LookupEnv,
		toolkitDirs: []string{"/usr/local/cuda", "/opt/cuda"},
	}
}

// WithQuery replaces the command used to probe nvidia-smi
func (g *GPUDetector) WithQuery(query QueryFunc) *GPUDetector {
	g.query = query
	return g
}

// WithEnv replaces the environment lookup
func (g *GPUDetector) WithEnv(lookupEnv func(string) (string, bool)) *GPUDetector {
	g.lookupEnv = lookupEnv
	return g
}

// WithToolkitDirs replaces the CUDA toolkit locations checked as a last resort
func (g *GPUDetector) WithToolkitDirs(dirs ...string) *GPUDetector {
	g.toolkitDirs = dirs
	return g
}

// DetectGPU detects available NVIDIA GPU devices.
// An explicit CUDA_VISIBLE_DEVICES of "-1" or "" hides every device.
func (g *GPUDetector) DetectGPU() *GPUInfo {
	info := &GPUInfo{}

	if visible, hidden := g.visibleDevices(); hidden {
		info.Source = "CUDA_VISIBLE_DEVICES"
		g.logger.Debug("CUDA devices hidden by environment")
		return info
	} else if visible > 0 {
		info.DeviceCount = visible
	}

	if err := g.detectWithNvidiaSMI(info); err != nil {
		g.logger.Debug("nvidia-smi detection failed", zap.Error(err))
		if !g.detectWithCUDAToolkit(info) {
			return info
		}
	}

	g.logger.Info("GPU detection completed",
		zap.Bool("available", info.Available),
		zap.Int("device_count", info.DeviceCount),
		zap.String("device_name", info.DeviceName),
		zap.String("source", info.Source))

	return info
}

func (g *GPUDetector) visibleDevices() (int, bool) {
	raw, set := g.lookupEnv("CUDA_VISIBLE_DEVICES")
	if !set {
		return 0, false
	}
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "-1" {
		return 0, true
	}
	return len(strings.Split(raw, ",")), false
}

func (g *GPUDetector) detectWithNvidiaSMI(info *GPUInfo) error {
	out, err := g.query("nvidia-smi", "--query-gpu=name,driver_version", "--format=csv,noheader,nounits")
	if err != nil {
		return fmt.Errorf("nvidia-smi command failed: %w", err)
	}

	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return fmt.Errorf("no GPUs found by nvidia-smi")
	}

	parts := strings.Split(lines[0], ",")
	if len(parts) < 2 {
		return fmt.Errorf("unexpected nvidia-smi format: %s", lines[0])
	}

	if info.DeviceCount == 0 || info.DeviceCount > len(lines) {
		info.DeviceCount = len(lines)
	}
	info.DeviceName = strings.TrimSpace(parts[0])
	info.DriverVersion = strings.TrimSpace(parts[1])
	info.Available = true
	info.Source = "nvidia-smi"
	return nil
}

func (g *GPUDetector) detectWithCUDAToolkit(info *GPUInfo) bool {
	dirs := g.toolkitDirs
	if home, ok := g.lookupEnv("CUDA_HOME"); ok && home != "" {
		dirs = append([]string{home}, dirs...)
	}

	for _, dir := range dirs {
		if _, err := os.Stat(dir + "/bin/nvcc"); err == nil {
			info.Available = true
			if info.DeviceCount == 0 {
				info.DeviceCount = 1
			}
			info.Source = "cuda-toolkit"
			return true
		}
	}
	return false
}

// ResolveDevice maps a configured device (auto, cpu, cuda) to the one the tools should use.
// auto picks cuda only when a GPU is detected; cuda without a GPU falls back to cpu with a warning.
func (g *GPUDetector) ResolveDevice(setting string) string {
	switch strings.ToLower(strings.TrimSpace(setting)) {
	case DeviceCPU:
		return DeviceCPU
	case DeviceCUDA:
		if g.DetectGPU().Available {
			return DeviceCUDA
		}
		g.logger.Warn("cuda requested but no GPU detected, using cpu")
		return DeviceCPU
	default:
		if g.DetectGPU().Available {
			return DeviceCUDA
		}
		return DeviceCPU
	}
}
