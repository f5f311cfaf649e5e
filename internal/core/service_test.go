package core_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/ledgerimport/internal/core"
	"github.com/JonMunkholm/ledgerimport/internal/spreadsheet"
	"github.com/JonMunkholm/ledgerimport/internal/store/memory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// sale is one data row of a sales export.
type sale struct {
	date    string
	receipt string
	service string
	stylist string
	amount  string
}

// salesCSV renders an export with the point-of-sale column layout:
// date in A, receipt in B, item in E, team member in H, total in Q.
func salesCSV(sales ...sale) []byte {
	var b strings.Builder
	header := make([]string, 17)
	header[0], header[1], header[4], header[7], header[16] = "Date", "Receipt", "Item", "Team member", "Total sales"
	b.WriteString(strings.Join(header, ",") + "\n")

	for _, s := range sales {
		cols := make([]string, 17)
		cols[0], cols[1], cols[4], cols[7], cols[16] = s.date, s.receipt, s.service, s.stylist, s.amount
		b.WriteString(strings.Join(cols, ",") + "\n")
	}
	return []byte(b.String())
}

type harness struct {
	svc   *core.Service
	db    *memory.DB
	state *memory.StateStore
	dir   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := memory.New()
	db.AddStylist("Anna")
	db.AddStylist("Ben")
	db.AddService("Cut")
	db.AddService("Colour")

	h := &harness{db: db, state: memory.NewStateStore(), dir: t.TempDir()}
	h.svc = h.newService(t)
	return h
}

// newService builds another Service over the harness stores, standing in for
// a second process sharing the state database.
func (h *harness) newService(t *testing.T) *core.Service {
	t.Helper()
	svc, err := core.NewService(core.Deps{
		State:   h.state,
		Staging: h.db,
		Ledger:  h.db,
		Catalog: h.db,
		Decoder: spreadsheet.NewDecoder(),
	}, core.Options{
		UploadDir:     filepath.Join(h.dir, "uploads"),
		BatchSize:     2,
		MaxConcurrent: 2,
		MaxWait:       5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

func (h *harness) upload(t *testing.T, name string, body []byte) core.UploadResult {
	t.Helper()
	res, err := h.svc.AcceptUpload(context.Background(), core.UploadRequest{
		FileName: name,
		Body:     bytes.NewReader(body),
	})
	if err != nil {
		t.Fatalf("AcceptUpload() error = %v", err)
	}
	return res
}

func (h *harness) process(t *testing.T, jobID uuid.UUID) core.ProcessResult {
	t.Helper()
	res, err := h.svc.ProcessJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}
	return res
}

func (h *harness) job(t *testing.T, id uuid.UUID) core.Job {
	t.Helper()
	job, err := h.svc.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	return job
}

func (h *harness) uploadFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(h.dir, "uploads"))
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func threeSales() []byte {
	return salesCSV(
		sale{"01/06/24 10:00:00", "R1", "Cut", "Anna", "50.00"},
		sale{"01/06/24 11:00:00", "R2", "Colour", "Ben", `"1,200.00"`},
		sale{"02/06/2024 09:30:00", "R3", "Cut", "anna", "19.99"},
	)
}

func TestService_UploadAndProcess(t *testing.T) {
	h := newHarness(t)

	up := h.upload(t, "june.csv", threeSales())
	if up.Status != core.StatusSuccess {
		t.Fatalf("upload status = %s (%s), want success", up.Status, up.Message)
	}
	if up.TotalRows != 3 {
		t.Errorf("TotalRows = %d, want 3", up.TotalRows)
	}
	if job := h.job(t, up.JobID); job.Status != core.JobValidated || job.UploadID != up.UploadID {
		t.Errorf("job = %s/%s, want validated/%s", job.Status, job.UploadID, up.UploadID)
	}

	res := h.process(t, up.JobID)
	if res.Status != core.StatusSuccess {
		t.Fatalf("process status = %s (%s), want success", res.Status, res.Message)
	}
	if res.RowsInserted != 3 {
		t.Errorf("RowsInserted = %d, want 3", res.RowsInserted)
	}
	if want := decimal.RequireFromString("1269.99"); !res.TotalAmount.Equal(want) {
		t.Errorf("TotalAmount = %s, want %s", res.TotalAmount, want)
	}

	rows := h.db.LedgerRows()
	if len(rows) != 3 {
		t.Fatalf("ledger rows = %d, want 3", len(rows))
	}
	if got := rows[2].Net.StringFixed(2); got != "17.19" {
		t.Errorf("net of 19.99 = %s, want 17.19", got)
	}
	if got := h.db.BatchSizes(); fmt.Sprint(got) != "[2 1]" {
		t.Errorf("batches = %v, want [2 1]", got)
	}

	job := h.job(t, up.JobID)
	if job.Status != core.JobProcessed || job.ProcessedAt == nil {
		t.Errorf("job = %s (processed_at %v), want processed", job.Status, job.ProcessedAt)
	}
	if staged, _ := h.db.Load(context.Background(), up.UploadID); len(staged) != 0 {
		t.Errorf("staged rows after commit = %d, want 0", len(staged))
	}
	if files := h.uploadFiles(t); len(files) != 0 {
		t.Errorf("upload files left = %v", files)
	}

	snap, _ := h.svc.Status(context.Background())
	if snap.Status != core.StatusSuccess || snap.RowsInserted != 3 {
		t.Errorf("status = %+v, want success with 3 rows", snap)
	}

	trail, err := h.svc.AuditLog(context.Background(), up.JobID)
	if err != nil {
		t.Fatalf("AuditLog() error = %v", err)
	}
	var actions []core.AuditAction
	for _, e := range trail {
		actions = append(actions, e.Action)
	}
	if fmt.Sprint(actions) != "[upload commit]" {
		t.Errorf("audit actions = %v, want [upload commit]", actions)
	}
	if trail[1].RowsAffected != 3 || trail[1].Severity != core.SeverityHigh {
		t.Errorf("commit entry = %+v", trail[1])
	}
}

func TestService_ReprocessRejected(t *testing.T) {
	h := newHarness(t)
	up := h.upload(t, "june.csv", threeSales())
	h.process(t, up.JobID)

	res := h.process(t, up.JobID)
	if res.Status != core.StatusError || res.Message != core.MsgAlreadyProcessed {
		t.Errorf("reprocess = %s %q, want error %q", res.Status, res.Message, core.MsgAlreadyProcessed)
	}
	if job := h.job(t, up.JobID); job.Status != core.JobProcessed {
		t.Errorf("job status = %s, want processed", job.Status)
	}
	if n := len(h.db.LedgerRows()); n != 3 {
		t.Errorf("ledger rows = %d, want 3", n)
	}
}

func TestService_UnknownJob(t *testing.T) {
	h := newHarness(t)
	res := h.process(t, uuid.New())
	if res.Status != core.StatusError || core.KindOf(res.Err) != core.KindJobNotFound {
		t.Errorf("process unknown = %s %v, want job_not_found", res.Status, res.Err)
	}
}

func TestService_RowErrorRejectsUpload(t *testing.T) {
	h := newHarness(t)

	var sales []sale
	for i := 1; i <= 6; i++ {
		date := "01/06/24 10:00:00"
		if i == 6 {
			date = "2024-06-01"
		}
		sales = append(sales, sale{date, fmt.Sprintf("R%d", i), "Cut", "Anna", "10"})
	}

	up := h.upload(t, "bad.csv", salesCSV(sales...))
	if up.Status != core.StatusError {
		t.Fatalf("status = %s, want error", up.Status)
	}
	if up.Err == nil || up.Err.Kind != core.KindInvalidDate || up.Err.Row != 7 {
		t.Errorf("err = %v, want invalid date on row 7", up.Err)
	}
	if !strings.Contains(up.Message, "row 7") {
		t.Errorf("message = %q, want it to name row 7", up.Message)
	}
	if job := h.job(t, up.JobID); job.Status != core.JobError {
		t.Errorf("job status = %s, want error", job.Status)
	}
	if files := h.uploadFiles(t); len(files) != 0 {
		t.Errorf("upload files left = %v", files)
	}
}

func TestService_DuplicateReceiptsInFile(t *testing.T) {
	h := newHarness(t)

	up := h.upload(t, "dup.csv", salesCSV(
		sale{"01/06/24 10:00:00", "R1", "Cut", "Anna", "10"},
		sale{"01/06/24 10:05:00", "R1", "Cut", "Anna", "10"},
		sale{"01/06/24 10:10:00", "R2", "Cut", "Anna", "10"},
	))
	if up.Status != core.StatusError {
		t.Fatalf("status = %s, want error", up.Status)
	}
	if fmt.Sprint(up.Duplicates) != "[R1]" {
		t.Errorf("Duplicates = %v, want [R1]", up.Duplicates)
	}
}

func TestService_DuplicateReceiptsInLedgerAtStage(t *testing.T) {
	h := newHarness(t)
	h.db.InsertLedgerRow(core.LedgerRow{ReceiptNo: "R2", Amount: decimal.NewFromInt(1)})

	up := h.upload(t, "june.csv", threeSales())
	if up.Status != core.StatusError || fmt.Sprint(up.Duplicates) != "[R2]" {
		t.Errorf("upload = %s %v, want error with [R2]", up.Status, up.Duplicates)
	}
}

func TestService_DuplicateAppearsBeforeCommit(t *testing.T) {
	h := newHarness(t)
	up := h.upload(t, "june.csv", threeSales())

	// Another import commits R3 between staging and processing.
	h.db.InsertLedgerRow(core.LedgerRow{ReceiptNo: "R3", Amount: decimal.NewFromInt(1)})

	res := h.process(t, up.JobID)
	if res.Status != core.StatusError {
		t.Fatalf("status = %s, want error", res.Status)
	}
	if fmt.Sprint(res.Duplicates) != "[R3]" {
		t.Errorf("Duplicates = %v, want [R3]", res.Duplicates)
	}
	if n := len(h.db.LedgerRows()); n != 1 {
		t.Errorf("ledger rows = %d, want 1", n)
	}
	if staged, _ := h.db.Load(context.Background(), up.UploadID); len(staged) != 0 {
		t.Errorf("staged rows = %d, want cleared", len(staged))
	}
	if job := h.job(t, up.JobID); job.Status != core.JobError {
		t.Errorf("job status = %s, want error", job.Status)
	}
}

func TestService_UnknownServiceUsesSentinel(t *testing.T) {
	h := newHarness(t)
	up := h.upload(t, "june.csv", salesCSV(
		sale{"01/06/24 10:00:00", "R1", "Balayage", "Anna", "120"},
		sale{"01/06/24 11:00:00", "R2", "Cut", "Ben", "40"},
	))

	res := h.process(t, up.JobID)
	if res.Status != core.StatusSuccess {
		t.Fatalf("status = %s (%s), want success", res.Status, res.Message)
	}
	if !slices.Contains(res.Rewritten, "Balayage") {
		t.Errorf("Rewritten = %v, want Balayage", res.Rewritten)
	}

	sentinel, _ := h.db.ServiceID(core.NewServiceSentinel)
	rows := h.db.LedgerRows()
	if rows[0].ServiceID != sentinel {
		t.Errorf("service id = %d, want sentinel %d", rows[0].ServiceID, sentinel)
	}
	if _, ok := h.db.ServiceID("Balayage"); ok {
		t.Error("unknown service should not be added to the catalog")
	}
}

func TestService_UnknownStylistFails(t *testing.T) {
	h := newHarness(t)
	up := h.upload(t, "june.csv", salesCSV(
		sale{"01/06/24 10:00:00", "R1", "Cut", "Zed", "120"},
	))

	res := h.process(t, up.JobID)
	if res.Status != core.StatusError || core.KindOf(res.Err) != core.KindUnknownStylist {
		t.Fatalf("process = %s %v, want unknown stylist", res.Status, res.Err)
	}
	if !strings.Contains(res.Message, "Zed") {
		t.Errorf("message = %q, want it to name Zed", res.Message)
	}
	if n := len(h.db.LedgerRows()); n != 0 {
		t.Errorf("ledger rows = %d, want 0", n)
	}
}

func TestService_RetryAfterRegisteringStylist(t *testing.T) {
	h := newHarness(t)
	body := salesCSV(sale{"01/06/24 10:00:00", "R1", "Cut", "Zed", "120"})

	first := h.upload(t, "june.csv", body)
	if res := h.process(t, first.JobID); core.KindOf(res.Err) != core.KindUnknownStylist {
		t.Fatalf("process = %s %v, want unknown stylist", res.Status, res.Err)
	}

	h.db.AddStylist("Zed")

	// Same bytes: the failed job must not count as an earlier upload.
	retry := h.upload(t, "june.csv", body)
	if retry.Status != core.StatusSuccess {
		t.Fatalf("retry upload = %s (%s), want success", retry.Status, retry.Message)
	}
	if retry.JobID == first.JobID {
		t.Error("retry should create a new job")
	}
	if res := h.process(t, retry.JobID); res.Status != core.StatusSuccess || res.RowsInserted != 1 {
		t.Errorf("retry process = %s %d (%s), want success with 1 row", res.Status, res.RowsInserted, res.Message)
	}

	// A committed file is still refused.
	again := h.upload(t, "june.csv", body)
	if core.KindOf(again.Err) != core.KindDuplicateFile || again.JobID != retry.JobID {
		t.Errorf("third upload = %v job %s, want duplicate of %s", again.Err, again.JobID, retry.JobID)
	}
}

func TestService_ConcurrentProcessSameJob(t *testing.T) {
	tests := []struct {
		name      string
		instances int
	}{
		{name: "one service", instances: 1},
		{name: "two services sharing state", instances: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			services := []*core.Service{h.svc}
			for len(services) < tt.instances {
				services = append(services, h.newService(t))
			}

			up := h.upload(t, "june.csv", threeSales())

			const workers = 8
			results := make([]core.ProcessResult, workers)
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					res, err := services[i%len(services)].ProcessJob(context.Background(), up.JobID)
					if err != nil {
						t.Errorf("ProcessJob() error = %v", err)
					}
					results[i] = res
				}(i)
			}
			wg.Wait()

			successes := 0
			for _, res := range results {
				if res.Status == core.StatusSuccess {
					successes++
				}
			}
			if successes != 1 {
				t.Errorf("successes = %d, want 1", successes)
			}
			if n := len(h.db.LedgerRows()); n != 3 {
				t.Errorf("ledger rows = %d, want 3", n)
			}
			if job := h.job(t, up.JobID); job.Status != core.JobProcessed {
				t.Errorf("job status = %s, want processed", job.Status)
			}
		})
	}
}

func TestService_CommitRollback(t *testing.T) {
	h := newHarness(t)
	up := h.upload(t, "june.csv", threeSales())

	calls := 0
	h.db.InsertHook = func([]core.LedgerRow) error {
		calls++
		if calls == 2 {
			return fmt.Errorf("connection reset by peer")
		}
		return nil
	}

	res := h.process(t, up.JobID)
	if res.Status != core.StatusError || core.KindOf(res.Err) != core.KindCommitFailed {
		t.Fatalf("process = %s %v, want commit failed", res.Status, res.Err)
	}
	if n := len(h.db.LedgerRows()); n != 0 {
		t.Errorf("ledger rows after rollback = %d, want 0", n)
	}
	if job := h.job(t, up.JobID); job.Status != core.JobError {
		t.Errorf("job status = %s, want error", job.Status)
	}
}

func TestService_SourceFileMissing(t *testing.T) {
	h := newHarness(t)
	up := h.upload(t, "june.csv", threeSales())

	for _, name := range h.uploadFiles(t) {
		os.Remove(filepath.Join(h.dir, "uploads", name))
	}

	res := h.process(t, up.JobID)
	if core.KindOf(res.Err) != core.KindSourceFileMissing {
		t.Errorf("err = %v, want source file missing", res.Err)
	}
	if strings.Contains(res.Message, h.dir) {
		t.Errorf("message = %q, should not reveal the upload path", res.Message)
	}
	if job := h.job(t, up.JobID); strings.Contains(job.Message, h.dir) {
		t.Errorf("job message = %q, should not reveal the upload path", job.Message)
	}
	if n := len(h.db.LedgerRows()); n != 0 {
		t.Errorf("ledger rows = %d, want 0", n)
	}
}

func TestService_StatusHidesFileNames(t *testing.T) {
	h := newHarness(t)
	up := h.upload(t, "salon-june-private.csv", threeSales())

	var during core.StatusSnapshot
	h.db.InsertHook = func([]core.LedgerRow) error {
		if during.Status == "" {
			during, _ = h.svc.Status(context.Background())
		}
		return nil
	}

	if res := h.process(t, up.JobID); res.Status != core.StatusSuccess {
		t.Fatalf("process = %s (%s), want success", res.Status, res.Message)
	}
	if during.Status != string(core.JobProcessing) {
		t.Fatalf("snapshot during commit = %+v, want processing", during)
	}
	if strings.Contains(during.Message, "salon-june-private") {
		t.Errorf("snapshot message = %q, should not name the file", during.Message)
	}
	if !strings.Contains(during.Message, up.JobID.String()) {
		t.Errorf("snapshot message = %q, want the job ID", during.Message)
	}
}

func TestService_DecodeErrorHidesPath(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(h.dir, "missing.csv")

	res, err := h.svc.StageUpload(context.Background(), path)
	if err != nil {
		t.Fatalf("StageUpload() error = %v", err)
	}
	if core.KindOf(res.Err) != core.KindDecode {
		t.Fatalf("err = %v, want decode", res.Err)
	}
	if strings.Contains(res.Message, h.dir) {
		t.Errorf("message = %q, should not reveal the path", res.Message)
	}
}

func TestService_DuplicateFile(t *testing.T) {
	h := newHarness(t)
	first := h.upload(t, "june.csv", threeSales())

	second := h.upload(t, "june-copy.csv", threeSales())
	if second.Status != core.StatusError || core.KindOf(second.Err) != core.KindDuplicateFile {
		t.Fatalf("second upload = %s %v, want duplicate file", second.Status, second.Err)
	}
	if second.JobID != first.JobID {
		t.Errorf("JobID = %s, want earlier job %s", second.JobID, first.JobID)
	}
	if got := core.MapError(second.Err).Code; got != "FILE007" {
		t.Errorf("code = %s, want FILE007", got)
	}

	job, found, err := h.svc.CheckDuplicateFile(context.Background(), strings.ToUpper(h.job(t, first.JobID).FileHash))
	if err != nil || !found || job.ID != first.JobID {
		t.Errorf("CheckDuplicateFile() = %s, %v, %v", job.ID, found, err)
	}

	res, err := h.svc.AcceptUpload(context.Background(), core.UploadRequest{
		FileName:       "june.csv",
		Body:           bytes.NewReader(threeSales()),
		AllowDuplicate: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if core.KindOf(res.Err) == core.KindDuplicateFile {
		t.Error("AllowDuplicate should skip the file check")
	}
}

func TestService_UnsupportedExtension(t *testing.T) {
	h := newHarness(t)
	res := h.upload(t, "june.pdf", []byte("%PDF"))
	if core.KindOf(res.Err) != core.KindUnsupportedFile {
		t.Errorf("err = %v, want unsupported file", res.Err)
	}
	if files := h.uploadFiles(t); len(files) != 0 {
		t.Errorf("upload files = %v, want none", files)
	}
}

func TestService_EmptyFile(t *testing.T) {
	h := newHarness(t)
	res := h.upload(t, "empty.csv", salesCSV())
	if res.Status != core.StatusError || core.KindOf(res.Err) != core.KindDecode {
		t.Errorf("upload = %s %v, want decode error", res.Status, res.Err)
	}
}

func TestService_StageUpload(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(h.dir, "direct.csv")
	if err := os.WriteFile(path, threeSales(), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := h.svc.StageUpload(context.Background(), path)
	if err != nil {
		t.Fatalf("StageUpload() error = %v", err)
	}
	if res.Status != core.StatusSuccess || res.TotalRows != 3 {
		t.Fatalf("StageUpload() = %+v", res)
	}
	staged, _ := h.db.Load(context.Background(), res.UploadID)
	if len(staged) != 3 {
		t.Errorf("staged rows = %d, want 3", len(staged))
	}
}

func TestService_SweepExpired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	up := h.upload(t, "june.csv", threeSales())

	n, err := h.svc.SweepExpired(ctx, time.Hour)
	if err != nil || n != 0 {
		t.Fatalf("SweepExpired(1h) = %d, %v, want 0", n, err)
	}

	n, err = h.svc.SweepExpired(ctx, 0)
	if err != nil || n != 1 {
		t.Fatalf("SweepExpired(0) = %d, %v, want 1", n, err)
	}

	job := h.job(t, up.JobID)
	if job.Status != core.JobError || job.Message != core.MsgSessionExpired {
		t.Errorf("job = %s %q, want expired", job.Status, job.Message)
	}
	if staged, _ := h.db.Load(ctx, up.UploadID); len(staged) != 0 {
		t.Errorf("staged rows = %d, want cleared", len(staged))
	}
	if files := h.uploadFiles(t); len(files) != 0 {
		t.Errorf("upload files = %v, want none", files)
	}

	res := h.process(t, up.JobID)
	if core.KindOf(res.Err) != core.KindInvalidState {
		t.Errorf("process expired job = %v, want invalid state", res.Err)
	}
}

func TestService_ListJobs(t *testing.T) {
	h := newHarness(t)
	h.upload(t, "a.csv", threeSales())
	h.upload(t, "b.csv", salesCSV(sale{"01/06/24 10:00:00", "R9", "Cut", "Anna", "5"}))

	jobs, err := h.svc.ListJobs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 {
		t.Errorf("ListJobs() = %d jobs, want 2", len(jobs))
	}
}

func TestNewService_RequiresDeps(t *testing.T) {
	if _, err := core.NewService(core.Deps{}, core.Options{}); err == nil {
		t.Error("NewService() with no deps should fail")
	}
}
