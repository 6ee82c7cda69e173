package main

import "github.com/redactyl/cfnsanitizer/cmd/cfnsanitizer"

func main() { cfnsanitizer.Execute() }
