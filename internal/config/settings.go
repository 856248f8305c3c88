package config

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidSetting 表示设置值不在允许的枚举范围内
var ErrInvalidSetting = errors.New("无效的设置值")

// 仪表盘设置的允许取值
var (
	allowedRefreshSeconds = map[int]bool{30: true, 60: true, 120: true, 300: true, 600: true}
	allowedWindowMinutes  = map[int]bool{5: true, 15: true, 30: true, 60: true}
)

// Settings 保存可在运行时调整的仪表盘设置
// 并发安全：轮询协程和HTTP处理器都会读取
type Settings struct {
	mu             sync.RWMutex
	refreshSeconds int
	windowMinutes  int
}

// NewSettings 根据配置的初始值创建设置
// 初始值同样要通过枚举校验，避免配置文件绕过限制
func NewSettings(refreshSeconds, windowMinutes int) (*Settings, error) {
	s := &Settings{refreshSeconds: 60, windowMinutes: 15}
	if err := s.SetRefreshSeconds(refreshSeconds); err != nil {
		return nil, err
	}
	if err := s.SetWindowMinutes(windowMinutes); err != nil {
		return nil, err
	}
	return s, nil
}

// RefreshSeconds 返回当前的自动刷新间隔（秒）
func (s *Settings) RefreshSeconds() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshSeconds
}

// WindowMinutes 返回当前的图表聚合窗口（分钟）
func (s *Settings) WindowMinutes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.windowMinutes
}

// ValidateRefreshSeconds 校验自动刷新间隔是否在允许的枚举内
func ValidateRefreshSeconds(seconds int) error {
	if !allowedRefreshSeconds[seconds] {
		return fmt.Errorf("%w: 刷新间隔 %d 秒不在允许范围 [30 60 120 300 600]", ErrInvalidSetting, seconds)
	}
	return nil
}

// ValidateWindowMinutes 校验图表聚合窗口是否在允许的枚举内
func ValidateWindowMinutes(minutes int) error {
	if !allowedWindowMinutes[minutes] {
		return fmt.Errorf("%w: 聚合窗口 %d 分钟不在允许范围 [5 15 30 60]", ErrInvalidSetting, minutes)
	}
	return nil
}

// SetRefreshSeconds 更新自动刷新间隔，仅接受 {30,60,120,300,600}
// 校验失败时保留原值
func (s *Settings) SetRefreshSeconds(seconds int) error {
	if err := ValidateRefreshSeconds(seconds); err != nil {
		return err
	}
	s.mu.Lock()
	s.refreshSeconds = seconds
	s.mu.Unlock()
	return nil
}

// SetWindowMinutes 更新图表聚合窗口，仅接受 {5,15,30,60}
// 校验失败时保留原值
func (s *Settings) SetWindowMinutes(minutes int) error {
	if err := ValidateWindowMinutes(minutes); err != nil {
		return err
	}
	s.mu.Lock()
	s.windowMinutes = minutes
	s.mu.Unlock()
	return nil
}
