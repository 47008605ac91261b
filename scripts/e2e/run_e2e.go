// Package main runs end-to-end scenarios of the trial class booking flow against a
// running API.
//
// Scenarios cover:
//   - Single-message booking
//   - Multi-turn collection of name, age and level
//   - A non-Tuesday date being refused
//   - Rejecting the proposed slot and picking another time
//   - Cancelling mid-flow
//   - Staff lookup of the stored booking
//
// Usage:
//
//	ADMIN_JWT_SECRET=... API_BASE_URL=... go run scripts/e2e/run_e2e.go [scenario-name]
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const requestTimeout = 60 * time.Second

var (
	apiBase    string
	adminToken string
	client     = &http.Client{Timeout: requestTimeout}
)

type scenario struct {
	Name string
	Fn   func(t *T)
}

// T is a lightweight test context for a single scenario.
type T struct {
	passed int
	failed int
	name   string
	convID string
}

func (t *T) check(name string, ok bool) {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		t.passed++
	} else {
		fmt.Printf("    FAIL: %s\n", name)
		t.failed++
	}
}

func (t *T) fatalf(format string, args ...interface{}) {
	fmt.Printf("    FATAL: "+format+"\n", args...)
	t.failed++
}

type turnReply struct {
	Stage     string `json:"stage"`
	Output    string `json:"output"`
	BookingID string `json:"booking_id"`
}

// say sends one customer message and returns the assistant reply.
func (t *T) say(text string) (turnReply, bool) {
	fmt.Printf("    > %s\n", text)
	body, _ := json.Marshal(map[string]string{
		"message":      text,
		"customer_ref": "e2e-" + t.name,
		"message_id":   uuid.NewString(),
	})
	url := fmt.Sprintf("%s/v1/conversations/%s/messages", apiBase, t.convID)
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.fatalf("send message: %v", err)
		return turnReply{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.fatalf("send message returned %d: %s", resp.StatusCode, string(raw))
		return turnReply{}, false
	}
	var reply turnReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		t.fatalf("decode reply: %v", err)
		return turnReply{}, false
	}
	fmt.Printf("    < [%s] %s\n", reply.Stage, reply.Output)
	return reply, true
}

func adminGet(path string, out interface{}) (int, error) {
	req, _ := http.NewRequest(http.MethodGet, apiBase+path, nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

func signAdminToken(secret string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "e2e",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	return token.SignedString([]byte(secret))
}

// nextTuesday returns the next Tuesday at least two days away.
func nextTuesday() time.Time {
	d := time.Now().AddDate(0, 0, 2)
	for d.Weekday() != time.Tuesday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

func scenarioHappyPath(t *T) {
	day := nextTuesday().Format("January 2")
	reply, ok := t.say(fmt.Sprintf("Hi, I'm Carla, 29, intermediate level. Can I try the class on Tuesday %s at 7pm?", day))
	if !ok {
		return
	}
	t.check("asks for confirmation", reply.Stage == "awaiting_confirmation")
	t.check("summary mentions the name", containsAny(reply.Output, "carla"))

	reply, ok = t.say("Yes, confirmed!")
	if !ok {
		return
	}
	t.check("booking created", reply.Stage == "booked")
	t.check("booking id returned", reply.BookingID != "")
}

func scenarioMultiTurn(t *T) {
	reply, ok := t.say("Hello! I want to book a trial class")
	if !ok {
		return
	}
	t.check("collects customer info first", reply.Stage == "collect_info")

	reply, ok = t.say("My name is Rui and I'm 41")
	if !ok {
		return
	}
	t.check("still missing the level", reply.Stage == "collect_info")
	t.check("asks about level", containsAny(reply.Output, "level", "beginner", "experience", "played"))

	reply, ok = t.say("I'm a total beginner")
	if !ok {
		return
	}
	t.check("moves to date and time", reply.Stage == "ask_datetime")
}

func scenarioWrongWeekday(t *T) {
	wednesday := nextTuesday().AddDate(0, 0, 1).Format("January 2")
	reply, ok := t.say(fmt.Sprintf("I'm Ana, 35, advanced. Could I come on %s at 6pm?", wednesday))
	if !ok {
		return
	}
	t.check("refuses the date", reply.Stage == "ask_datetime")
	t.check("mentions Tuesday", containsAny(reply.Output, "tuesday"))
}

func scenarioRejectSlot(t *T) {
	day := nextTuesday().Format("January 2")
	if _, ok := t.say(fmt.Sprintf("Bruno here, 22, beginner. Tuesday %s at 6pm please", day)); !ok {
		return
	}
	reply, ok := t.say("Actually no, that time doesn't work")
	if !ok {
		return
	}
	t.check("asks for another time", reply.Stage == "ask_datetime")

	reply, ok = t.say("8pm then")
	if !ok {
		return
	}
	t.check("confirms the new slot", reply.Stage == "awaiting_confirmation")
	t.check("keeps the date", containsAny(reply.Output, nextTuesday().Format("02/01"), nextTuesday().Format("January 2"), nextTuesday().Format("2006-01-02")))
}

func scenarioCancel(t *T) {
	if _, ok := t.say("Hi, I'm Dora, 50, intermediate"); !ok {
		return
	}
	reply, ok := t.say("Never mind, I want to cancel")
	if !ok {
		return
	}
	t.check("conversation cancelled", reply.Stage == "cancelled")
}

func scenarioStaffLookup(t *T) {
	day := nextTuesday().Format("January 2")
	if _, ok := t.say(fmt.Sprintf("Eva, 31, beginner, Tuesday %s at 7pm", day)); !ok {
		return
	}
	reply, ok := t.say("yes")
	if !ok || reply.BookingID == "" {
		t.fatalf("no booking to look up")
		return
	}

	var booking struct {
		ID             string `json:"id"`
		ConversationID string `json:"conversation_id"`
		Status         string `json:"status"`
	}
	status, err := adminGet("/admin/bookings/"+reply.BookingID, &booking)
	if err != nil {
		t.fatalf("get booking: %v", err)
		return
	}
	t.check("staff can read the booking", status == http.StatusOK)
	t.check("booking is pending", booking.Status == "pending")

	var rec struct {
		Stage string `json:"stage"`
	}
	status, err = adminGet("/admin/conversations/"+t.convID, &rec)
	if err != nil {
		t.fatalf("get conversation: %v", err)
		return
	}
	t.check("conversation record readable", status == http.StatusOK && rec.Stage == "booked")
}

func main() {
	apiBase = strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	secret := os.Getenv("ADMIN_JWT_SECRET")
	if apiBase == "" || secret == "" {
		fmt.Fprintln(os.Stderr, "ERROR: API_BASE_URL and ADMIN_JWT_SECRET required")
		os.Exit(1)
	}
	var err error
	if adminToken, err = signAdminToken(secret); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: sign admin token: %v\n", err)
		os.Exit(1)
	}

	scenarios := []scenario{
		{"happy-path", scenarioHappyPath},
		{"multi-turn", scenarioMultiTurn},
		{"wrong-weekday", scenarioWrongWeekday},
		{"reject-slot", scenarioRejectSlot},
		{"cancel", scenarioCancel},
		{"staff-lookup", scenarioStaffLookup},
	}

	filter := ""
	if len(os.Args) > 1 {
		filter = os.Args[1]
	}

	totalPassed, totalFailed := 0, 0
	var results []string
	for _, s := range scenarios {
		if filter != "" && s.Name != filter {
			continue
		}
		fmt.Printf("\n========================================\n")
		fmt.Printf("SCENARIO: %s\n", s.Name)
		fmt.Printf("========================================\n")

		t := &T{name: s.Name, convID: "e2e:" + s.Name + ":" + uuid.NewString()[:8]}
		s.Fn(t)

		totalPassed += t.passed
		totalFailed += t.failed
		status := "PASS"
		if t.failed > 0 {
			status = "FAIL"
		}
		results = append(results, fmt.Sprintf("  %s %s (%d passed, %d failed)", status, s.Name, t.passed, t.failed))
	}

	fmt.Printf("\n========================================\n")
	fmt.Println("SUMMARY")
	fmt.Printf("========================================\n")
	for _, r := range results {
		fmt.Println(r)
	}
	fmt.Printf("\nTotal: %d passed, %d failed\n", totalPassed, totalFailed)
	if totalFailed > 0 {
		os.Exit(1)
	}
}
