package main

import "dompet/process/sanitize"

func main() {
	sanitize.Run()
}
