// Package config 存放应用的各项配置，通过 init() 注册到 pkg/config
package config

// Initialize 触发本包所有 init() 方法的加载
func Initialize() {
	// 留空
}
