// Package config loads racerpatch settings from flags, the environment and
// an optional YAML file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ZacharyZcR/racerpatch/internal/arena"
	"github.com/ZacharyZcR/racerpatch/internal/asset"
	"github.com/ZacharyZcR/racerpatch/internal/patch"
	"github.com/go-audio/audio"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envVarPrefix = "RACERPATCH"

// DefaultExecutable is launched when launch mode names no executable.
const DefaultExecutable = "swep1rcr.exe"

// ErrUsage is returned for invalid command line input.
var ErrUsage = errors.New("参数错误")

// Config contains every setting of a run.
type Config struct {
	// Path of the file to patch, or of the executable to launch.
	Executable string `mapstructure:"executable"`
	// Launch the executable suspended and patch it in memory.
	Launch bool `mapstructure:"launch"`
	// Arguments passed to the launched executable.
	Args []string `mapstructure:"-"`
	// Directory holding the texture payloads.
	AssetDir    string `mapstructure:"asset_dir"`
	AssetSuffix string `mapstructure:"asset_suffix"`
	// Copy the file to <file>.bak before patching.
	Backup         bool `mapstructure:"backup"`
	UpdateChecksum bool `mapstructure:"update_checksum"`
	// Map addresses outside every known section with the .rsrc delta.
	LegacyFallback bool `mapstructure:"legacy_fallback"`
	// Write the original textures to this directory and exit.
	DumpTextures string `mapstructure:"dump_textures"`
	// Print the section layout after patching.
	ShowLayout bool `mapstructure:"show_layout"`
	// Minimum level of a log required to be written. Options: debug, info, warn, error
	LogLevel string `mapstructure:"log_level"`
	// File to which logs will be written. Blank writes to stderr.
	LogFile string `mapstructure:"log_file"`

	Patches struct {
		Textures bool `mapstructure:"textures"`
		Network  bool `mapstructure:"network"`
		Audio    bool `mapstructure:"audio"`
		Sprites  bool `mapstructure:"sprites"`
	} `mapstructure:"patches"`

	Network struct {
		Levels  []int `mapstructure:"levels"`
		Healths []int `mapstructure:"healths"`
	} `mapstructure:"network"`

	Audio struct {
		SampleRate int `mapstructure:"sample_rate"`
		BitDepth   int `mapstructure:"bit_depth"`
		Channels   int `mapstructure:"channels"`
	} `mapstructure:"audio"`
}

func setDefaults(v *viper.Viper) {
	network := patch.DefaultNetworkUpgrades()
	sound := patch.DefaultAudioQuality()

	v.SetDefault("launch", false)
	v.SetDefault("asset_dir", ".")
	v.SetDefault("asset_suffix", asset.DefaultSuffix)
	v.SetDefault("backup", true)
	v.SetDefault("update_checksum", true)
	v.SetDefault("legacy_fallback", false)
	v.SetDefault("show_layout", true)
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_file", "")
	v.SetDefault("patches.textures", true)
	v.SetDefault("patches.network", true)
	v.SetDefault("patches.audio", true)
	v.SetDefault("patches.sprites", true)
	v.SetDefault("network.levels", toInts(network.Levels[:]))
	v.SetDefault("network.healths", toInts(network.Healths[:]))
	v.SetDefault("audio.sample_rate", sound.Format.SampleRate)
	v.SetDefault("audio.bit_depth", sound.BitDepth)
	v.SetDefault("audio.channels", sound.Format.NumChannels)
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"launch":          "launch",
	"asset-dir":       "asset_dir",
	"asset-suffix":    "asset_suffix",
	"backup":          "backup",
	"update-checksum": "update_checksum",
	"legacy-fallback": "legacy_fallback",
	"dump-textures":   "dump_textures",
	"layout":          "show_layout",
	"log-level":       "log_level",
	"log-file":        "log_file",
	"textures":        "patches.textures",
	"network":         "patches.network",
	"audio":           "patches.audio",
	"sprites":         "patches.sprites",
	"levels":          "network.levels",
	"healths":         "network.healths",
	"sample-rate":     "audio.sample_rate",
	"bit-depth":       "audio.bit_depth",
	"channels":        "audio.channels",
}

// NewFlagSet defines the command line flags. Defaults live in viper, so
// flags only override when given.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	// Everything after the executable belongs to the game.
	fs.SetInterspersed(false)
	fs.String("config", "", "配置文件路径 (YAML)")
	fs.Bool("launch", false, "以挂起方式启动游戏并在内存中打补丁")
	fs.String("asset-dir", ".", "纹理资源目录")
	fs.String("asset-suffix", asset.DefaultSuffix, "纹理资源文件后缀")
	fs.Bool("backup", true, "修改前创建备份文件")
	fs.Bool("update-checksum", true, "修改后更新PE校验和")
	fs.Bool("legacy-fallback", false, "未知地址按 .rsrc 节区偏移换算 (旧行为)")
	fs.String("dump-textures", "", "导出原始字体纹理到指定目录后退出")
	fs.Bool("layout", true, "打补丁后显示节区布局")
	fs.String("log-level", "warn", "日志级别: debug, info, warn, error")
	fs.String("log-file", "", "日志文件 (默认输出到标准错误)")
	fs.Bool("textures", true, "替换高分辨率字体纹理")
	fs.Bool("network", true, "固定联网比赛的升级配置")
	fs.Bool("audio", true, "提高音频流质量")
	fs.Bool("sprites", true, "优先加载 TGA 精灵")
	fs.IntSlice("levels", nil, "7个升级等级 (必须相同)")
	fs.IntSlice("healths", nil, "7个耐久度 (必须相同)")
	fs.Int("sample-rate", 0, "音频采样率")
	fs.Int("bit-depth", 0, "音频位深 (8 或 16)")
	fs.Int("channels", 0, "音频声道数 (1 或 2)")
	return fs
}

// Load parses args with fs and merges flags, the RACERPATCH_* environment,
// the config file and defaults.
func Load(fs *pflag.FlagSet, args []string) (*Config, error) {
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUsage, err)
	}

	v := viper.New()
	setDefaults(v)

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, fmt.Errorf("绑定参数 %s 失败: %w", name, err)
		}
	}

	// Nested keys are set through the environment as <prefix>_AUDIO_SAMPLE_RATE.
	v.SetEnvPrefix(envVarPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := readConfigFile(v, fs); err != nil {
		return nil, err
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if rest := fs.Args(); len(rest) > 0 {
		config.Executable = rest[0]
		config.Args = rest[1:]
	}
	if config.Executable == "" && config.Launch {
		config.Executable = DefaultExecutable
	}
	if config.Executable == "" {
		return nil, fmt.Errorf("%w: 未指定要修改的文件", ErrUsage)
	}

	return config, nil
}

func readConfigFile(v *viper.Viper, fs *pflag.FlagSet) error {
	path, _ := fs.GetString("config")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("racerpatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("读取配置文件失败: %w", err)
	}
	return nil
}

// PatchOptions converts the settings into the operations to run.
func (c *Config) PatchOptions() (patch.Options, error) {
	opts := patch.Options{
		Capacity: arena.DefaultCapacity,
		Assets:   asset.NewLoader(c.AssetDir, c.AssetSuffix),
		Textures: c.Patches.Textures,
		Sprites:  c.Patches.Sprites,
	}

	if c.Patches.Network {
		var n patch.NetworkUpgrades
		if err := fillUpgrades(n.Levels[:], c.Network.Levels, "levels"); err != nil {
			return opts, err
		}
		if err := fillUpgrades(n.Healths[:], c.Network.Healths, "healths"); err != nil {
			return opts, err
		}
		if err := n.Validate(); err != nil {
			return opts, err
		}
		opts.Network = &n
	}

	if c.Patches.Audio {
		a := patch.AudioQuality{
			Format:   audio.Format{NumChannels: c.Audio.Channels, SampleRate: c.Audio.SampleRate},
			BitDepth: c.Audio.BitDepth,
		}
		if err := a.Validate(); err != nil {
			return opts, err
		}
		opts.Audio = &a
	}

	return opts, nil
}

func fillUpgrades(dst []uint8, src []int, key string) error {
	if len(src) != len(dst) {
		return fmt.Errorf("%w: network.%s 需要 %d 个值, 得到 %d 个", ErrUsage, key, len(dst), len(src))
	}
	for i, v := range src {
		if v < 0 || v > 0xFF {
			return fmt.Errorf("%w: network.%s[%d] = %d 超出范围", ErrUsage, key, i, v)
		}
		dst[i] = uint8(v)
	}
	return nil
}

func toInts(b []uint8) []int {
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}
