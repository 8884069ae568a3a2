// Package main provides the inkcost command line tool.
//
// Usage:
//
//	inkcost analyze brochure.pdf
//	inkcost analyze --format json s3://bucket/report.pdf https://example.com/flyer.pdf
//
// See --help for all available options.
package main

func main() {
	Execute()
}
