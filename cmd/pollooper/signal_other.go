//go:build !unix

package main

import "pollooper/internal/app"

func watchCrossingSignal(*app.App) (stop func()) { return func() {} }
