package integration

import (
	"io/ioutil"
	"os"
	"os/exec"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	. "github.com/onsi/gomega/gexec"

	"github.com/skipor/twemcached/config"
	"github.com/skipor/twemcached/testutil"
)

var _ = Describe("Integration", func() {
	const SessionWaitTime = 3 * time.Second
	var (
		confFile   string
		inConf     *config.Input
		serverConf *config.Config

		session *Session
	)
	BeforeEach(func() {
		ResetTestKeys()
		confFile = testutil.TmpFileName()
		inConf = config.Default()
		inConf.LogLevel = "debug"
		inConf.Port = 0
		inConf.Host = "127.0.0.1"
		serverConf = nil
	})

	StartTwemcached := func() {
		var err error
		command := exec.Command(TwemcachedCLI, "-config", confFile)
		session, err = Start(command, GinkgoWriter, GinkgoWriter)
		Expect(err).ToNot(HaveOccurred(), "%v", err)
		time.Sleep(50 * time.Millisecond) // Wait for the listener to come up.
	}
	JustBeforeEach(func() {
		var err error
		serverConf, err = config.Parse(inConf)
		Expect(err).NotTo(HaveOccurred())
		err = ioutil.WriteFile(confFile, config.Marshal(inConf), 0600)
		Expect(err).NotTo(HaveOccurred())
		StartTwemcached()
	})
	AfterEach(func() {
		session.Terminate().Wait(SessionWaitTime)
		os.Remove(confFile)
	})

	Context("simple requests", func() {
		var (
			c   *memcache.Client
			err error
		)
		JustBeforeEach(func() {
			c = memcache.New(serverConf.Addr)
		})

		It("get what set", func() {
			set := RandSizeItem()
			err = c.Set(set)
			Expect(err).To(BeNil())
			get, err := c.Get(set.Key)
			Expect(err).To(BeNil())
			ExpectItemsEqual(get, set)
		})

		It("overwrite", func() {
			set := RandSizeItem()
			overwrite := RandSizeItem()
			overwrite.Key = set.Key
			err = c.Set(set)
			Expect(err).To(BeNil())
			err = c.Set(overwrite)
			Expect(err).To(BeNil())

			get, err := c.Get(set.Key)
			Expect(err).To(BeNil())
			ExpectItemsEqual(get, overwrite)
		})

		It("delete", func() {
			set := RandSizeItem()
			err = c.Set(set)
			Expect(err).To(BeNil())

			err = c.Delete(set.Key)
			_, err = c.Get(set.Key)
			Expect(err).To(Equal(memcache.ErrCacheMiss))
		})

		It("multi get", func() {
			var keys []string
			items := map[string]*memcache.Item{}
			for i := 0; i < 10; i++ {
				it := RandSizeItem()
				keys = append(keys, it.Key)
				items[it.Key] = it
				err = c.Set(it)
				Expect(err).To(BeNil())
			}
			gotItems, err := c.GetMulti(keys)
			Expect(err).To(BeNil())
			Expect(len(gotItems)).To(Equal(len(items)))
			for k, v := range gotItems {
				ExpectItemsEqual(v, items[k])
			}
		})

		It("increment and decrement", func() {
			set := &memcache.Item{Key: TestKey(), Value: []byte("10")}
			Expect(c.Set(set)).To(Succeed())

			n, err := c.Increment(set.Key, 5)
			Expect(err).To(BeNil())
			Expect(n).To(BeEquivalentTo(15))

			n, err = c.Decrement(set.Key, 100)
			Expect(err).To(BeNil())
			Expect(n).To(BeEquivalentTo(0))
		})
	})

	Context("load", func() {
		BeforeEach(func() {
			inConf.LogLevel = "info" // Too large debug output under load.
		})
		It("serves many clients concurrently", func() {
			LoadTest(serverConf.Addr)
		})
	})

	It("does not linger on termination", func() {
		session.Terminate().Wait(SessionWaitTime)
		Expect(session).To(Exit(143))
	})
})
