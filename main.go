package main

import (
	"fmt"

	_ "github.com/openclaw/go-common/cache"
	_ "github.com/openclaw/go-common/compress"
	_ "github.com/openclaw/go-common/config"
	_ "github.com/openclaw/go-common/logger"
	_ "github.com/openclaw/go-common/queue"
	_ "github.com/openclaw/go-common/vmcache"
)

func main() {
	fmt.Println("openclaw go-common")
}
