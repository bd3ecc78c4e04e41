package svc

import "errors"

// ErrUnknownPriceSource 错误：配置的价格源没有注册
var ErrUnknownPriceSource = errors.New("price source not registered")

// ErrStorageInitFailed 错误：存储初始化失败
var ErrStorageInitFailed = errors.New("storage initialization failed")
