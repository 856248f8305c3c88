package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSettings(t *testing.T) {
	settings, err := NewSettings(60, 15)
	require.NoError(t, err, "合法初始值应创建成功")

	assert.Equal(t, 60, settings.RefreshSeconds())
	assert.Equal(t, 15, settings.WindowMinutes())
}

func TestNewSettingsRejectsInvalidValues(t *testing.T) {
	// 配置文件中的非法初始值同样要被拒绝
	_, err := NewSettings(45, 15)
	assert.ErrorIs(t, err, ErrInvalidSetting, "非法刷新间隔应被拒绝")

	_, err = NewSettings(60, 10)
	assert.ErrorIs(t, err, ErrInvalidSetting, "非法聚合窗口应被拒绝")
}

func TestSetRefreshSeconds(t *testing.T) {
	settings, err := NewSettings(60, 15)
	require.NoError(t, err)

	// 允许的取值全部接受
	for _, seconds := range []int{30, 60, 120, 300, 600} {
		assert.NoError(t, settings.SetRefreshSeconds(seconds), "刷新间隔 %d 应被接受", seconds)
		assert.Equal(t, seconds, settings.RefreshSeconds())
	}

	// 非法值被拒绝且保留原值
	err = settings.SetRefreshSeconds(90)
	assert.ErrorIs(t, err, ErrInvalidSetting)
	assert.Equal(t, 600, settings.RefreshSeconds(), "校验失败时应保留原值")
}

func TestSetWindowMinutes(t *testing.T) {
	settings, err := NewSettings(60, 15)
	require.NoError(t, err)

	for _, minutes := range []int{5, 15, 30, 60} {
		assert.NoError(t, settings.SetWindowMinutes(minutes), "聚合窗口 %d 应被接受", minutes)
		assert.Equal(t, minutes, settings.WindowMinutes())
	}

	err = settings.SetWindowMinutes(0)
	assert.ErrorIs(t, err, ErrInvalidSetting)
	assert.Equal(t, 60, settings.WindowMinutes(), "校验失败时应保留原值")
}
