package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"smart-attendance-backend/internal/engine"
	"smart-attendance-backend/internal/model"
)

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of Sender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// MarkedJob describes one successful attendance mark to fan out.
type MarkedJob struct {
	StudentID string
	Name      string
}

// WorkerPool sends push notifications to the subscribers of a student
// when that student is marked present. Sends happen off the frame loop.
type WorkerPool struct {
	size    int
	jobs    chan MarkedJob
	db      *gorm.DB
	webpush *webpush.Options
	sender  Sender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan MarkedJob, size),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Notification worker %d started", id)
	for {
		select {
		case job := <-wp.jobs:
			wp.notifySubscribers(ctx, job)
		case <-ctx.Done():
			log.Printf("Notification worker %d shutting down", id)
			return
		}
	}
}

// Dispatch sends a job to the worker pool without ever blocking the frame
// loop; when the queue is full the notification is dropped.
func (wp *WorkerPool) Dispatch(job MarkedJob) {
	select {
	case wp.jobs <- job:
	default:
		log.Printf("Notification queue full, dropping notification for %s", job.StudentID)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan MarkedJob {
	return wp.jobs
}

// notifySubscribers fetches the subscriptions following the student and
// sends each one a notification.
func (wp *WorkerPool) notifySubscribers(ctx context.Context, job MarkedJob) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_student_mapping ssm ON ssm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("ssm.student_id = ?", job.StudentID).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("Error fetching subscriptions for student %s: %v", job.StudentID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	log.Printf("Sending %d notifications for student %s", len(subscriptions), job.StudentID)

	name := job.Name
	if name == "" {
		name = job.StudentID
	}
	message := fmt.Sprintf("%s has been marked present", name)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}

// SinkAdapter bridges engine events into the worker pool. Only Marked
// events produce notifications.
type SinkAdapter struct {
	pool *WorkerPool
}

// NewSinkAdapter wraps a pool as an engine.Sink.
func NewSinkAdapter(pool *WorkerPool) *SinkAdapter {
	return &SinkAdapter{pool: pool}
}

// Face dispatches Marked events to the pool.
func (a *SinkAdapter) Face(e engine.Event) {
	if e.Kind != engine.Marked {
		return
	}
	a.pool.Dispatch(MarkedJob{StudentID: e.StudentID, Name: e.Name})
}

// Session is a no-op; session summaries are not pushed.
func (a *SinkAdapter) Session(engine.SessionEvent) {}
