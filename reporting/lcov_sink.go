package reporting

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// LCOVSink writes the machine-readable line-coverage report to lcov.info.
type LCOVSink struct{}

func (s *LCOVSink) Name() string { return FormatLCOV }

func (s *LCOVSink) Write(dir string, data *ReportData) error {
	f, err := os.Create(filepath.Join(dir, "lcov.info"))
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, fc := range data.Files {
		cs := data.agg.Files[fc.Path]
		if cs == nil {
			continue
		}
		fmt.Fprintln(w, "TN:")
		fmt.Fprintf(w, "SF:%s\n", fc.Path)

		// Function records, keyed by declaration line.
		fnHit := 0
		for _, k := range sortedKeys(cs.Functions) {
			line := keyLine(k)
			count := cs.Functions[k]
			fmt.Fprintf(w, "FN:%d,fn_%d\n", line, line)
			fmt.Fprintf(w, "FNDA:%d,fn_%d\n", count, line)
			if count > 0 {
				fnHit++
			}
		}
		fmt.Fprintf(w, "FNF:%d\n", len(cs.Functions))
		fmt.Fprintf(w, "FNH:%d\n", fnHit)

		// Branch records: arm index is the trailing :0/:1 of the key.
		brHit := 0
		for _, k := range sortedBranchKeys(cs.Branches) {
			line, arm := branchKey(k)
			count := cs.Branches[k]
			taken := "-"
			if count > 0 {
				taken = strconv.FormatUint(count, 10)
				brHit++
			}
			fmt.Fprintf(w, "BRDA:%d,0,%d,%s\n", line, arm, taken)
		}
		fmt.Fprintf(w, "BRF:%d\n", len(cs.Branches))
		fmt.Fprintf(w, "BRH:%d\n", brHit)

		lnHit := 0
		for _, k := range sortedKeys(cs.Lines) {
			count := cs.Lines[k]
			fmt.Fprintf(w, "DA:%d,%d\n", keyLine(k), count)
			if count > 0 {
				lnHit++
			}
		}
		fmt.Fprintf(w, "LF:%d\n", len(cs.Lines))
		fmt.Fprintf(w, "LH:%d\n", lnHit)
		fmt.Fprintln(w, "end_of_record")
	}
	return w.Flush()
}

// keyLine extracts the line number from a path:line position key.
func keyLine(key string) int {
	idx := strings.LastIndex(key, ":")
	n, _ := strconv.Atoi(key[idx+1:])
	return n
}

// branchKey extracts line and arm index from a path:line:arm key.
func branchKey(key string) (line, arm int) {
	idx := strings.LastIndex(key, ":")
	arm, _ = strconv.Atoi(key[idx+1:])
	return keyLine(key[:idx]), arm
}

func sortedBranchKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		li, ai := branchKey(keys[i])
		lj, aj := branchKey(keys[j])
		if li != lj {
			return li < lj
		}
		return ai < aj
	})
	return keys
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		li, lj := keyLine(keys[i]), keyLine(keys[j])
		if li != lj {
			return li < lj
		}
		return keys[i] < keys[j]
	})
	return keys
}
