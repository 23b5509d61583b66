package main

import (
	"fmt"
	"strconv"
	"strings"

	"codegraph/internal/app"
)

// parseTarget splits file:line[:column] into a build request. The file part
// may itself contain colons.
func parseTarget(s string) (app.BuildRequest, error) {
	nums := make([]int, 0, 2)
	rest := s
	for len(nums) < 2 {
		i := strings.LastIndexByte(rest, ':')
		if i < 0 {
			break
		}
		n, err := strconv.Atoi(rest[i+1:])
		if err != nil {
			break
		}
		nums = append(nums, n)
		rest = rest[:i]
	}
	if rest == "" || len(nums) == 0 {
		return app.BuildRequest{}, fmt.Errorf("target %q: want file:line[:column]", s)
	}

	req := app.BuildRequest{FilePath: rest}
	if len(nums) == 1 {
		req.Line = nums[0]
	} else {
		req.Line, req.Column = nums[1], nums[0]
	}
	if req.Line < 1 || req.Column < 0 {
		return app.BuildRequest{}, fmt.Errorf("target %q: line and column are 1-based", s)
	}
	return req, nil
}
