package cmd

import (
	"fmt"
)

const banner = `
   _____                 _____            _
  / ____|               / ____|          | |
 | |     _ __ _____    _| (___   ___  __ _| |
 | |    | '__/ _ \ \/\/ /\___ \ / _ \/ _' | |
 | |____| | |  __/\    / ____) |  __/ (_| | |
  \_____|_|  \___| \/\/ |_____/ \___|\__,_|_|

`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Crew Messaging Encryption Service - Version %s\x1b[0m\n\n", Version)
}
