package services

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/jjnnsslimaye/seedling-backend/middleware"
	"github.com/jjnnsslimaye/seedling-backend/models"
)

func judgingApp(svc *JudgingService) *fiber.App {
	app := fiber.New()
	app.Use(middleware.UserContextMiddleware())
	app.Get("/judging/assignments", svc.GetMyAssignments)
	app.Get("/judging/submissions/:id", svc.GetSubmissionForJudging)
	app.Post("/judging/submissions/:id/score", svc.SubmitScore)
	return app
}

func postScore(t *testing.T, app *fiber.App, submissionID, judgeID string, scores map[string]float64, feedback string) (int, map[string]interface{}) {
	t.Helper()
	return postScoreAs(t, app, submissionID, judgeID, "judge", scores, feedback)
}

func postScoreAs(t *testing.T, app *fiber.App, submissionID, userID, roles string, scores map[string]float64, feedback string) (int, map[string]interface{}) {
	t.Helper()
	body, _ := json.Marshal(map[string]interface{}{
		"criteria_scores": scores,
		"feedback":        feedback,
	})
	req := httptest.NewRequest("POST", "/judging/submissions/"+submissionID+"/score", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", userID)
	req.Header.Set("X-User-Roles", roles)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("submit score: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]interface{}{}
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func TestSubmitScoreComputesWeightedOverall(t *testing.T) {
	db := setupTestDB(t)
	svc := NewJudgingService(db)
	app := judgingApp(svc)

	comp := seedCompetition(t, db, models.CompetitionJudging)
	founder := seedUser(t, db, models.RoleFounder)
	judge := seedUser(t, db, models.RoleJudge)
	sub := seedSubmission(t, db, comp, founder, models.SubmissionSubmitted)
	assignment := seedAssignment(t, db, judge, sub, models.AssignmentAssigned)

	code, out := postScore(t, app, sub.ID, judge.ID,
		map[string]float64{"innovation": 9, "execution": 6}, "strong concept")
	if code != 200 {
		t.Fatalf("status = %d, want 200 (%v)", code, out)
	}
	// innovation carries weight 2, execution weight 1: (9*2 + 6*1) / 3.
	if out["overall"] != 8.0 {
		t.Fatalf("overall = %v, want 8", out["overall"])
	}

	var gotSub models.Submission
	db.First(&gotSub, "id = ?", sub.ID)
	if gotSub.Status != models.SubmissionUnderReview {
		t.Fatalf("submission = %s, want under_review", gotSub.Status)
	}
	if gotSub.FinalScore == nil || *gotSub.FinalScore != 8 {
		t.Fatalf("final score = %v, want 8", gotSub.FinalScore)
	}
	if len(gotSub.JudgeFeedback) != 1 || gotSub.JudgeFeedback[0].Feedback != "strong concept" {
		t.Fatalf("feedback = %+v, want one entry", gotSub.JudgeFeedback)
	}

	var gotAssignment models.JudgeAssignment
	db.First(&gotAssignment, "id = ?", assignment.ID)
	if gotAssignment.Status != models.AssignmentCompleted || gotAssignment.CompletedAt == nil {
		t.Fatalf("assignment = %s/%v, want completed with timestamp",
			gotAssignment.Status, gotAssignment.CompletedAt)
	}
}

func TestSubmitScoreAveragesAcrossJudges(t *testing.T) {
	db := setupTestDB(t)
	svc := NewJudgingService(db)
	app := judgingApp(svc)

	comp := seedCompetition(t, db, models.CompetitionJudging)
	founder := seedUser(t, db, models.RoleFounder)
	j1 := seedUser(t, db, models.RoleJudge)
	j2 := seedUser(t, db, models.RoleJudge)
	sub := seedSubmission(t, db, comp, founder, models.SubmissionSubmitted)
	seedAssignment(t, db, j1, sub, models.AssignmentAssigned)
	seedAssignment(t, db, j2, sub, models.AssignmentAssigned)

	postScore(t, app, sub.ID, j1.ID, map[string]float64{"innovation": 8, "execution": 8}, "")
	postScore(t, app, sub.ID, j2.ID, map[string]float64{"innovation": 6, "execution": 6}, "")

	var gotSub models.Submission
	db.First(&gotSub, "id = ?", sub.ID)
	if len(gotSub.HumanScores.Judges) != 2 {
		t.Fatalf("judges = %d, want 2", len(gotSub.HumanScores.Judges))
	}
	if gotSub.FinalScore == nil || *gotSub.FinalScore != 7 {
		t.Fatalf("final score = %v, want 7", gotSub.FinalScore)
	}
}

func TestSubmitScoreResubmissionReplaces(t *testing.T) {
	db := setupTestDB(t)
	svc := NewJudgingService(db)
	app := judgingApp(svc)

	comp := seedCompetition(t, db, models.CompetitionJudging)
	founder := seedUser(t, db, models.RoleFounder)
	judge := seedUser(t, db, models.RoleJudge)
	sub := seedSubmission(t, db, comp, founder, models.SubmissionSubmitted)
	assignment := seedAssignment(t, db, judge, sub, models.AssignmentAssigned)

	postScore(t, app, sub.ID, judge.ID, map[string]float64{"innovation": 4, "execution": 4}, "first pass")
	var afterFirst models.JudgeAssignment
	db.First(&afterFirst, "id = ?", assignment.ID)

	code, _ := postScore(t, app, sub.ID, judge.ID, map[string]float64{"innovation": 9, "execution": 9}, "second look")
	if code != 200 {
		t.Fatalf("re-submission status = %d, want 200", code)
	}

	var gotSub models.Submission
	db.First(&gotSub, "id = ?", sub.ID)
	if len(gotSub.HumanScores.Judges) != 1 {
		t.Fatalf("judges = %d, re-submission must replace", len(gotSub.HumanScores.Judges))
	}
	if gotSub.FinalScore == nil || *gotSub.FinalScore != 9 {
		t.Fatalf("final score = %v, want 9", gotSub.FinalScore)
	}
	if len(gotSub.JudgeFeedback) != 1 || gotSub.JudgeFeedback[0].Feedback != "second look" {
		t.Fatalf("feedback = %+v, want the replacement only", gotSub.JudgeFeedback)
	}

	var afterSecond models.JudgeAssignment
	db.First(&afterSecond, "id = ?", assignment.ID)
	if afterFirst.CompletedAt == nil || afterSecond.CompletedAt == nil {
		t.Fatal("completed_at should be set")
	}
	if !afterSecond.CompletedAt.Equal(*afterFirst.CompletedAt) {
		t.Fatal("completed_at must not move on score edits")
	}
}

func TestSubmitScoreValidation(t *testing.T) {
	db := setupTestDB(t)
	svc := NewJudgingService(db)
	app := judgingApp(svc)

	comp := seedCompetition(t, db, models.CompetitionJudging)
	founder := seedUser(t, db, models.RoleFounder)
	judge := seedUser(t, db, models.RoleJudge)
	sub := seedSubmission(t, db, comp, founder, models.SubmissionSubmitted)
	seedAssignment(t, db, judge, sub, models.AssignmentAssigned)

	if code, _ := postScore(t, app, sub.ID, judge.ID, map[string]float64{"innovation": 11}, ""); code != 400 {
		t.Fatalf("score above 10: status = %d, want 400", code)
	}
	if code, _ := postScore(t, app, sub.ID, judge.ID, map[string]float64{"innovation": -1}, ""); code != 400 {
		t.Fatalf("negative score: status = %d, want 400", code)
	}
	code, out := postScore(t, app, sub.ID, judge.ID, map[string]float64{"innovation": 7, "vibes": 5}, "")
	if code != 400 {
		t.Fatalf("criteria mismatch: status = %d, want 400", code)
	}
	msg, _ := out["error"].(string)
	if !strings.Contains(msg, "execution") || !strings.Contains(msg, "vibes") {
		t.Fatalf("error = %q, must name the missing and unexpected criteria", msg)
	}
	if code, _ := postScore(t, app, sub.ID, judge.ID, map[string]float64{"innovation": 7}, ""); code != 400 {
		t.Fatalf("partial scorecard: status = %d, every rubric criterion must be scored", code)
	}
	if code, _ := postScore(t, app, sub.ID, judge.ID, nil, ""); code != 400 {
		t.Fatalf("empty scores: status = %d, want 400", code)
	}
}

func TestSubmitScoreRequiresJudgingPhase(t *testing.T) {
	db := setupTestDB(t)
	svc := NewJudgingService(db)
	app := judgingApp(svc)

	comp := seedCompetition(t, db, models.CompetitionActive)
	founder := seedUser(t, db, models.RoleFounder)
	judge := seedUser(t, db, models.RoleJudge)
	sub := seedSubmission(t, db, comp, founder, models.SubmissionSubmitted)
	seedAssignment(t, db, judge, sub, models.AssignmentAssigned)

	code, _ := postScore(t, app, sub.ID, judge.ID, map[string]float64{"innovation": 7}, "")
	if code != 400 {
		t.Fatalf("status = %d, scores are only accepted during judging", code)
	}
}

func TestSubmitScoreRequiresRubric(t *testing.T) {
	db := setupTestDB(t)
	svc := NewJudgingService(db)
	app := judgingApp(svc)

	comp := seedCompetition(t, db, models.CompetitionJudging)
	comp.Rubric = models.Rubric{}
	if err := db.Save(comp).Error; err != nil {
		t.Fatalf("save comp: %v", err)
	}
	founder := seedUser(t, db, models.RoleFounder)
	judge := seedUser(t, db, models.RoleJudge)
	sub := seedSubmission(t, db, comp, founder, models.SubmissionSubmitted)
	seedAssignment(t, db, judge, sub, models.AssignmentAssigned)

	code, out := postScore(t, app, sub.ID, judge.ID, map[string]float64{"vibes": 7.5}, "")
	if code != 400 {
		t.Fatalf("status = %d, scoring without a rubric must be rejected (%v)", code, out)
	}

	var gotSub models.Submission
	db.First(&gotSub, "id = ?", sub.ID)
	if gotSub.FinalScore != nil {
		t.Fatalf("final score = %v, no score may be recorded without a rubric", gotSub.FinalScore)
	}
}

func TestSubmitScoreRequiresAssignment(t *testing.T) {
	db := setupTestDB(t)
	svc := NewJudgingService(db)
	app := judgingApp(svc)

	comp := seedCompetition(t, db, models.CompetitionJudging)
	founder := seedUser(t, db, models.RoleFounder)
	judge := seedUser(t, db, models.RoleJudge)
	sub := seedSubmission(t, db, comp, founder, models.SubmissionSubmitted)

	code, _ := postScore(t, app, sub.ID, judge.ID, map[string]float64{"innovation": 7, "execution": 7}, "")
	if code != 403 {
		t.Fatalf("status = %d, unassigned judges must be rejected", code)
	}
}

func TestSubmitScoreAdminBypassesAssignment(t *testing.T) {
	db := setupTestDB(t)
	svc := NewJudgingService(db)
	app := judgingApp(svc)

	comp := seedCompetition(t, db, models.CompetitionJudging)
	founder := seedUser(t, db, models.RoleFounder)
	admin := seedUser(t, db, models.RoleAdmin)
	sub := seedSubmission(t, db, comp, founder, models.SubmissionSubmitted)

	code, out := postScoreAs(t, app, sub.ID, admin.ID, "admin",
		map[string]float64{"innovation": 7, "execution": 7}, "admin review")
	if code != 200 {
		t.Fatalf("status = %d, want 200 (%v)", code, out)
	}

	var gotSub models.Submission
	db.First(&gotSub, "id = ?", sub.ID)
	if gotSub.Status != models.SubmissionUnderReview {
		t.Fatalf("submission = %s, want under_review", gotSub.Status)
	}
	if len(gotSub.HumanScores.Judges) != 1 {
		t.Fatalf("judges = %d, want 1", len(gotSub.HumanScores.Judges))
	}
}

func TestGetSubmissionForJudgingHidesOtherScores(t *testing.T) {
	db := setupTestDB(t)
	svc := NewJudgingService(db)
	app := judgingApp(svc)

	comp := seedCompetition(t, db, models.CompetitionJudging)
	founder := seedUser(t, db, models.RoleFounder)
	j1 := seedUser(t, db, models.RoleJudge)
	j2 := seedUser(t, db, models.RoleJudge)
	sub := seedSubmission(t, db, comp, founder, models.SubmissionSubmitted)
	seedAssignment(t, db, j1, sub, models.AssignmentAssigned)
	seedAssignment(t, db, j2, sub, models.AssignmentAssigned)

	postScore(t, app, sub.ID, j1.ID, map[string]float64{"innovation": 8, "execution": 8}, "")

	req := httptest.NewRequest("GET", "/judging/submissions/"+sub.ID, nil)
	req.Header.Set("X-User-ID", j2.ID)
	req.Header.Set("X-User-Roles", "judge")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("get submission: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]interface{}{}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out["my_score"] != nil {
		t.Fatalf("my_score = %v, another judge's score must not leak", out["my_score"])
	}
	if out["rubric"] == nil {
		t.Fatal("rubric should be included for scoring")
	}
	submission, _ := out["submission"].(map[string]interface{})
	if _, leaked := submission["final_score"]; leaked {
		t.Fatal("aggregate scores must not be exposed to judges")
	}
}
