package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/West13lue/stock-cbd-manager-sub000/config"
	"github.com/West13lue/stock-cbd-manager-sub000/models"
	"github.com/West13lue/stock-cbd-manager-sub000/utils"
	"github.com/West13lue/stock-cbd-manager-sub000/workflow"
	"github.com/shopspring/decimal"
)

func TestReceiveAndConsumeEndToEnd(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "stockmanager_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if err := models.MigrateDatabase(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	shop := "integration.myshop"
	ctx := utils.SetShopInContext(context.Background(), shop)

	po, err := models.CreatePurchaseOrder(ctx, &models.NewPurchaseOrder{
		SupplierId:   "sup_1",
		SupplierName: "Green Fields",
		Lines: []models.NewPurchaseOrderLine{
			{ProductId: "p1", ProductName: "CBD flower", OrderedGrams: dec("100"), PricePerGram: dec("1.5")},
		},
	})
	if err != nil {
		t.Fatalf("CreatePurchaseOrder: %v", err)
	}
	if po.Number != models.FormatOrderNumber(time.Now().UTC().Year(), 1) {
		t.Fatalf("order number = %q", po.Number)
	}
	if !po.Total.Equal(dec("150")) {
		t.Fatalf("total = %s, want 150", po.Total)
	}

	if _, err := models.SendPurchaseOrder(ctx, po.ID); err != nil {
		t.Fatalf("SendPurchaseOrder: %v", err)
	}

	if _, err := workflow.ReceiveItems(ctx, po.ID, []models.ReceivedLine{
		{LineKey: "line_1", ReceivedGrams: dec("60")},
	}, models.ReceiveOptions{}); err != nil {
		t.Fatalf("first ReceiveItems: %v", err)
	}

	reloaded, err := models.GetPurchaseOrder(ctx, fmt.Sprint(po.ID))
	if err != nil {
		t.Fatalf("GetPurchaseOrder: %v", err)
	}
	if reloaded.Status != models.PurchaseOrderStatusPartial {
		t.Fatalf("status = %s, want Partial", reloaded.Status)
	}
	if len(reloaded.Receptions) != 1 {
		t.Fatalf("receptions = %d, want 1", len(reloaded.Receptions))
	}
	// monetary totals must survive the decimal(20,4) round trip unchanged
	if !reloaded.Subtotal.Equal(dec("150")) || !reloaded.Total.Equal(dec("150")) {
		t.Fatalf("reloaded totals = %s / %s, want 150 / 150", reloaded.Subtotal, reloaded.Total)
	}
	if len(reloaded.Lines) != 1 || !reloaded.Lines[0].LineTotal.Equal(dec("150")) {
		t.Fatalf("reloaded line total = %+v, want one line of 150", reloaded.Lines)
	}

	// the advisory posting lock is session-scoped: a committed receive must
	// leave it free or the shop's next receive starves on a pooled connection
	var lockFree int
	if err := config.GetDB().Raw("SELECT IS_FREE_LOCK(?)", "posting:"+shop).Scan(&lockFree).Error; err != nil {
		t.Fatalf("IS_FREE_LOCK: %v", err)
	}
	if lockFree != 1 {
		t.Fatal("posting lock still held after a committed receive")
	}

	summary, err := models.GetProductStock(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProductStock: %v", err)
	}
	if !summary.TotalGrams.Equal(dec("60")) {
		t.Fatalf("total grams = %s, want 60", summary.TotalGrams)
	}
	if !summary.AverageCostPerGram.Equal(dec("1.5")) {
		t.Fatalf("average cost = %s, want 1.5", summary.AverageCostPerGram)
	}

	result, err := workflow.ReceiveItems(ctx, po.ID, []models.ReceivedLine{
		{LineKey: "line_1", ReceivedGrams: dec("40")},
	}, models.ReceiveOptions{})
	if err != nil {
		t.Fatalf("second ReceiveItems: %v", err)
	}
	if !result.IsComplete {
		t.Fatal("second reception must complete the order")
	}
	if result.PurchaseOrder.ReceivedAt == nil {
		t.Fatal("receivedAt must be set")
	}

	// two receipts -> two distinct lots -> FIFO consumption drains the older
	consumed, err := models.ConsumeStock(ctx, "p1", dec("70"), "sale")
	if err != nil {
		t.Fatalf("ConsumeStock: %v", err)
	}
	if len(consumed.ConsumedFrom) != 2 {
		t.Fatalf("consumed from %d lots, want 2", len(consumed.ConsumedFrom))
	}
	if !consumed.ConsumedFrom[0].Grams.Equal(dec("60")) || !consumed.ConsumedFrom[1].Grams.Equal(dec("10")) {
		t.Fatalf("FIFO split = %s + %s, want 60 + 10", consumed.ConsumedFrom[0].Grams, consumed.ConsumedFrom[1].Grams)
	}

	summary, err = models.GetProductStock(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProductStock after consume: %v", err)
	}
	if !summary.TotalGrams.Equal(dec("30")) {
		t.Fatalf("total grams = %s, want 30", summary.TotalGrams)
	}
	// consumption never moves the average
	if !summary.AverageCostPerGram.Equal(dec("1.5")) {
		t.Fatalf("average cost = %s, want 1.5", summary.AverageCostPerGram)
	}

	if _, err := models.ConsumeStock(ctx, "p1", dec("31"), "sale"); !errors.Is(err, utils.ErrorInsufficientStock) {
		t.Fatalf("over-consumption err = %v, want InsufficientStock", err)
	}

	// concurrent consumption must not plan against stale lot quantities:
	// 30g remain, two parallel 10g consumes must leave lots and summary
	// agreeing on 10g
	var wg sync.WaitGroup
	consumeErrs := make([]error, 2)
	for i := range consumeErrs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, consumeErrs[i] = models.ConsumeStock(ctx, "p1", dec("10"), "sale")
		}(i)
	}
	wg.Wait()
	for i, err := range consumeErrs {
		if err != nil {
			t.Fatalf("concurrent ConsumeStock[%d]: %v", i, err)
		}
	}

	summary, err = models.GetProductStock(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProductStock after concurrent consume: %v", err)
	}
	if !summary.TotalGrams.Equal(dec("10")) {
		t.Fatalf("total grams = %s, want 10", summary.TotalGrams)
	}
	var lotGrams decimal.Decimal
	if err := config.GetDB().Raw(
		"SELECT COALESCE(SUM(grams), 0) FROM batches WHERE shop = ? AND product_id = ? AND status <> 'Expired'",
		shop, "p1",
	).Scan(&lotGrams).Error; err != nil {
		t.Fatalf("sum lot grams: %v", err)
	}
	if !lotGrams.Equal(summary.TotalGrams) {
		t.Fatalf("lots hold %s but summary says %s", lotGrams, summary.TotalGrams)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("stockmanager-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("stockmanager-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=stockmanager_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}
