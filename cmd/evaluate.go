package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// evaluateCmd represents the evaluate command
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Replay a retrieval benchmark against the indexed corpus",
	Long: `The evaluate command reads a JSONL benchmark of questions with their
expected record ids, runs each question through the retriever, and reports
the hit rate.`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	settingDefaultConfig()

	evaluateCmd.Flags().StringP("input", "i", "", "Benchmark JSONL file path")
	evaluateCmd.MarkFlagRequired("input")
	evaluateCmd.Flags().IntP("top-k", "k", 0, "Override retrieval top k (0 = configured value)")
}

type benchmarkCase struct {
	Question          string   `json:"question"`
	ExpectedRecordIDs []string `json:"expected_record_ids"`
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	inputPath, _ := cmd.Flags().GetString("input")
	topK, _ := cmd.Flags().GetInt("top-k")
	if topK <= 0 {
		topK = 6
	}

	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open benchmark file: %v", err)
	}
	defer file.Close()

	var cases []benchmarkCase
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var bc benchmarkCase
		if err := json.Unmarshal(scanner.Bytes(), &bc); err != nil {
			return fmt.Errorf("failed to parse benchmark line: %v", err)
		}
		cases = append(cases, bc)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read benchmark file: %v", err)
	}
	if len(cases) == 0 {
		return fmt.Errorf("benchmark file %s contains no cases", inputPath)
	}

	vectorStore, err := newWeaviateStore()
	if err != nil {
		return err
	}
	elasticClient, err := newElasticClient()
	if err != nil {
		return err
	}
	embedder, err := newEmbedder()
	if err != nil {
		return err
	}
	provider, err := newLLMProvider()
	if err != nil {
		return err
	}
	retriever, err := newRetriever(embedder, provider, vectorStore, elasticClient)
	if err != nil {
		return err
	}

	bar := progressbar.Default(int64(len(cases)), "evaluating")

	var totalScore float64
	var failures int
	for _, bc := range cases {
		rs, err := retriever.Retrieve(ctx, bc.Question, topK)
		if err != nil {
			failures++
			bar.Add(1)
			continue
		}

		var hits int
		for _, expected := range bc.ExpectedRecordIDs {
			if rs.Contains(expected) {
				hits++
			}
		}
		if len(bc.ExpectedRecordIDs) > 0 {
			totalScore += float64(hits) / float64(len(bc.ExpectedRecordIDs))
		}
		bar.Add(1)
	}

	evaluated := len(cases) - failures
	fmt.Printf("\nEvaluation Results:\n")
	fmt.Printf("Total cases: %d\n", len(cases))
	fmt.Printf("Retrieval failures: %d\n", failures)
	if evaluated > 0 {
		fmt.Printf("Average hit rate: %.2f%%\n", totalScore/float64(evaluated)*100)
	}
	return nil
}
