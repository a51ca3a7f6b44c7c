// Load generator for exercising the enforcement API.
//
// Usage:
//   go run cmd/loadgen/main.go -cases 1000 -url http://localhost:8080
//
// This tool:
//   1. Opens synthetic cancellation cases with randomized notice periods
//   2. Optionally adjudicates each pending case as an admin
//   3. Reports state and penalty-window distributions plus throughput
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// CaseSpec is one synthetic cancellation to submit.
type CaseSpec struct {
	Seq             int
	NoticeDays      int
	AssignmentValue float64
	GraceHours      int
}

// CreateRequest is the enforcement API request format.
type CreateRequest struct {
	AssignmentID    string    `json:"assignmentId"`
	ContractID      string    `json:"contractId"`
	Initiator       Party     `json:"initiator"`
	Respondent      Party     `json:"respondent"`
	Reason          string    `json:"reason"`
	StartDate       time.Time `json:"startDate"`
	AssignmentValue float64   `json:"assignmentValue"`
	Policy          *Policy   `json:"policy,omitempty"`
}

type Party struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

type Policy struct {
	AssignmentID     string   `json:"assignmentId"`
	Windows          []Window `json:"windows"`
	GracePeriodHours int      `json:"gracePeriodHours"`
}

type Window struct {
	ThresholdDays     int     `json:"thresholdDaysBeforeStart"`
	PenaltyPercentage float64 `json:"penaltyPercentage"`
}

// TransitionRequest is the adjudication request format.
type TransitionRequest struct {
	Action string `json:"action"`
	Actor  Party  `json:"actor"`
	Notes  string `json:"notes,omitempty"`
}

// CaseResponse is the subset of the case payload the tool inspects.
type CaseResponse struct {
	ID           string `json:"id"`
	State        string `json:"state"`
	Cancellation struct {
		PenaltyPercentage float64 `json:"penaltyPercentage"`
		PenaltyAmount     float64 `json:"penaltyAmount"`
		ChargeID          string  `json:"chargeId"`
	} `json:"cancellation"`
}

// Metrics tracks load run results.
type Metrics struct {
	TotalCreated   int64
	TotalGrace     int64
	TotalApproved  int64
	TotalPenalized int64
	TotalZero      int64
	TotalErrors    int64

	PenaltyCents int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	baseURL := flag.String("url", "http://localhost:8080", "enforcement base URL")
	tenantID := flag.String("tenant", "loadgen-test", "Tenant ID for requests")
	caseCount := flag.Int("cases", 1000, "Number of cancellation cases to open")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	gracePct := flag.Float64("grace", 0.3, "Fraction of cases under a grace-period policy (0.0-1.0)")
	adjudicate := flag.Bool("adjudicate", true, "Approve each pending case after creation")
	seed := flag.Int64("seed", 42, "Random seed for reproducible runs")
	verbose := flag.Bool("verbose", false, "Print each case result")
	flag.Parse()

	fmt.Println("enforcement loadgen")
	fmt.Printf("\nTarget URL:  %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Cases:       %d\n", *caseCount)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Grace rate:  %.2f\n", *gracePct)
	fmt.Printf("Adjudicate:  %v\n", *adjudicate)
	fmt.Println()

	// Check the server is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: enforcement not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure the server is running:")
		fmt.Println("  go run cmd/enforcement/main.go")
		os.Exit(1)
	}
	fmt.Println("server is healthy")

	specs := generateSpecs(*caseCount, *gracePct, *seed)

	fmt.Printf("\nRunning load with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runLoad(specs, *baseURL, *tenantID, *workers, *adjudicate, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// generateSpecs builds the synthetic case mix: notice periods spread from
// same-day through 45 days out, assignment values from 5k to 50k.
func generateSpecs(count int, gracePct float64, seed int64) []CaseSpec {
	rng := rand.New(rand.NewSource(seed))

	specs := make([]CaseSpec, count)
	for i := range specs {
		graceHours := 0
		if rng.Float64() < gracePct {
			graceHours = 24
		}
		specs[i] = CaseSpec{
			Seq:             i,
			NoticeDays:      rng.Intn(46),
			AssignmentValue: 5000 + rng.Float64()*45000,
			GraceHours:      graceHours,
		}
	}
	return specs
}

func runLoad(specs []CaseSpec, baseURL, tenantID string, numWorkers int, adjudicate, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan CaseSpec, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for spec := range work {
				start := time.Now()
				result, err := submitCase(client, baseURL, tenantID, spec)
				if err == nil && adjudicate && result.State == "pending" {
					result, err = approveCase(client, baseURL, tenantID, result.ID)
				}
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: case %d -> %v\n", spec.Seq, err)
					}
					continue
				}

				atomic.AddInt64(&metrics.TotalCreated, 1)

				switch result.State {
				case "grace_period":
					atomic.AddInt64(&metrics.TotalGrace, 1)
				case "approved":
					atomic.AddInt64(&metrics.TotalApproved, 1)
					if result.Cancellation.PenaltyAmount > 0 {
						atomic.AddInt64(&metrics.TotalPenalized, 1)
						atomic.AddInt64(&metrics.PenaltyCents, int64(result.Cancellation.PenaltyAmount*100))
					} else {
						atomic.AddInt64(&metrics.TotalZero, 1)
					}
				}

				if verbose {
					fmt.Printf("case %-5d | notice: %2dd | value: $%10.2f | state: %-12s | penalty: %5.1f%% ($%.2f)\n",
						spec.Seq,
						spec.NoticeDays,
						spec.AssignmentValue,
						result.State,
						result.Cancellation.PenaltyPercentage,
						result.Cancellation.PenaltyAmount,
					)
				}
			}
		}()
	}

	for _, spec := range specs {
		work <- spec
	}
	close(work)

	wg.Wait()

	return metrics
}

func submitCase(client *http.Client, baseURL, tenantID string, spec CaseSpec) (*CaseResponse, error) {
	assignmentID := fmt.Sprintf("loadgen-assignment-%06d", spec.Seq)
	req := CreateRequest{
		AssignmentID:    assignmentID,
		ContractID:      fmt.Sprintf("loadgen-contract-%06d", spec.Seq),
		Initiator:       Party{ID: fmt.Sprintf("phys-%04d", spec.Seq%500), Role: "physician"},
		Respondent:      Party{ID: fmt.Sprintf("fac-%03d", spec.Seq%50), Role: "facility"},
		Reason:          "synthetic load case",
		StartDate:       time.Now().UTC().AddDate(0, 0, spec.NoticeDays),
		AssignmentValue: spec.AssignmentValue,
		Policy: &Policy{
			AssignmentID: assignmentID,
			Windows: []Window{
				{ThresholdDays: 30, PenaltyPercentage: 0},
				{ThresholdDays: 14, PenaltyPercentage: 25},
				{ThresholdDays: 7, PenaltyPercentage: 50},
				{ThresholdDays: 0, PenaltyPercentage: 100},
			},
			GracePeriodHours: spec.GraceHours,
		},
	}

	var result CaseResponse
	if err := postJSON(client, baseURL+"/cancellations", tenantID, req, &result, http.StatusCreated); err != nil {
		return nil, err
	}
	return &result, nil
}

func approveCase(client *http.Client, baseURL, tenantID, caseID string) (*CaseResponse, error) {
	req := TransitionRequest{
		Action: "approve",
		Actor:  Party{ID: "loadgen-admin", Role: "admin"},
	}

	var result CaseResponse
	if err := postJSON(client, baseURL+"/cancellations/"+caseID+"/transition", tenantID, req, &result, http.StatusOK); err != nil {
		return nil, err
	}
	return &result, nil
}

func postJSON(client *http.Client, url, tenantID string, body any, out any, wantStatus int) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nLOAD RESULTS")

	fmt.Printf("\nCASE OUTCOMES\n")
	fmt.Printf("   Created:     %d\n", m.TotalCreated)
	fmt.Printf("   In grace:    %d\n", m.TotalGrace)
	fmt.Printf("   Approved:    %d\n", m.TotalApproved)
	fmt.Printf("   Penalized:   %d\n", m.TotalPenalized)
	fmt.Printf("   No penalty:  %d\n", m.TotalZero)
	fmt.Printf("   Errors:      %d\n", m.TotalErrors)

	if m.TotalPenalized > 0 {
		avgPenalty := float64(m.PenaltyCents) / 100 / float64(m.TotalPenalized)
		fmt.Printf("\nPENALTIES\n")
		fmt.Printf("   Total decided:  $%.2f\n", float64(m.PenaltyCents)/100)
		fmt.Printf("   Avg per case:   $%.2f\n", avgPenalty)
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalCreated > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalCreated)
		cps := float64(m.TotalCreated) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f cases/sec\n", cps)
	}

	fmt.Println()
}
