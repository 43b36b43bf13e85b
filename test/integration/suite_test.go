package integration

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	log "github.com/sirupsen/logrus"

	"github.com/voluzi/procview/pkg/environ"
	"github.com/voluzi/procview/test/framework"
)

func TestIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	SetDefaultEventuallyTimeout(environ.GetDuration("EVENTUALLY_TIMEOUT", 10*time.Second))
	SetDefaultEventuallyPollingInterval(20 * time.Millisecond)
	RunSpecs(t, "Integration Test Suite")
}

var _ = BeforeSuite(func() {
	log.SetOutput(GinkgoWriter)
	log.SetLevel(log.DebugLevel)
})

// StartFramework starts a server for the current test and stops it when the
// test ends.
func StartFramework(opts ...framework.Config) *framework.Framework {
	tf := framework.New(opts...)
	Expect(tf.Setup()).To(Succeed())
	DeferCleanup(func() {
		select {
		case <-tf.Stopped():
		default:
			Expect(tf.TearDown()).To(Succeed())
		}
	})
	Eventually(func() (bool, error) {
		return tf.Client().Ready(context.Background())
	}).Should(BeTrue())
	return tf
}
