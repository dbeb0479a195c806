package pe

import (
	"errors"
	"fmt"

	"github.com/ZacharyZcR/racerpatch/internal/profile"
	"github.com/ZacharyZcR/racerpatch/internal/target"
)

// ErrImageBaseMismatch is returned when the header image base differs from
// the expected load address.
var ErrImageBaseMismatch = errors.New("镜像基址不匹配")

// Identify reads the build fingerprint at base and returns its profile.
// Nothing is written; an unknown build fails with profile.ErrUnsupportedVersion.
func Identify(acc *target.Accessor, base target.Address) (*profile.Profile, *Headers, error) {
	headers, err := LocateHeaders(acc, base)
	if err != nil {
		return nil, nil, err
	}

	timestamp, err := headers.Timestamp()
	if err != nil {
		return nil, nil, fmt.Errorf("读取时间戳失败: %w", err)
	}

	prof, err := profile.Lookup(timestamp)
	if err != nil {
		return nil, nil, err
	}

	imageBase, err := headers.ImageBase()
	if err != nil {
		return nil, nil, fmt.Errorf("读取镜像基址失败: %w", err)
	}
	if target.Address(imageBase) != base || prof.ImageBase != base {
		return nil, nil, fmt.Errorf("%w: 头部 0x%08X, 期望 %s", ErrImageBaseMismatch, imageBase, base)
	}

	return prof, headers, nil
}
