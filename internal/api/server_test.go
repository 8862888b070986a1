package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/bussim/internal/api"
	"github.com/san-kum/bussim/internal/command"
	"github.com/san-kum/bussim/internal/sim"
)

var _ = Describe("Server", func() {
	var (
		store  *sim.Store
		srv    *api.Server
		ts     *httptest.Server
		client *api.Client
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		store = sim.NewStore(sim.DefaultParams())
		logger := log.New(GinkgoWriter, "", 0)
		srv = api.NewServer(command.New(store, logger), api.ServerOptions{
			StreamFallback: 5 * time.Millisecond,
			Logger:         logger,
		})
		ctx, cancel = context.WithCancel(context.Background())
		go srv.Hub().Run(ctx)
		ts = httptest.NewServer(srv.Handler())

		var err error
		client, err = api.NewClient(ts.URL)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		cancel()
		ts.Close()
	})

	post := func(path, body string) (int, string) {
		resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp.StatusCode, string(data)
	}

	Describe("invoke", func() {
		It("returns the state document as a JSON string", func() {
			code, body := post("/invoke/get_global_state", "")
			Expect(code).To(Equal(http.StatusOK))

			var state string
			Expect(json.Unmarshal([]byte(body), &state)).To(Succeed())
			Expect(state).To(MatchJSON(`{"balance":0,"speed":1,"refresh_rate":20,"buses":{}}`))
		})

		It("toggles a bus with the desktop argument names", func() {
			id := uuid.New()
			code, body := post("/invoke/toggle_bus", `{"busId":"`+id.String()+`"}`)
			Expect(code).To(Equal(http.StatusOK))
			Expect(strings.TrimSpace(body)).To(Equal("null"))

			bus, ok := store.Read().Bus(id)
			Expect(ok).To(BeTrue())
			Expect(bus).To(Equal(sim.Bus{Percent: 0, IsActive: true}))
		})

		It("updates speed and refresh rate", func() {
			code, _ := post("/invoke/update_simulation_speed", `{"speed":42}`)
			Expect(code).To(Equal(http.StatusOK))
			code, _ = post("/invoke/update_refresh_rate", `{"refreshRate":500}`)
			Expect(code).To(Equal(http.StatusOK))

			Expect(store.Read().Params).To(Equal(sim.Params{Speed: 42, RefreshRate: 500}))
		})

		It("rejects unknown commands with 404", func() {
			code, body := post("/invoke/self_destruct", "")
			Expect(code).To(Equal(http.StatusNotFound))
			Expect(body).To(ContainSubstring("unknown command"))
		})

		It("rejects malformed arguments with 400", func() {
			code, _ := post("/invoke/toggle_bus", `{"busId":"not-a-uuid"}`)
			Expect(code).To(Equal(http.StatusBadRequest))
		})

		It("only accepts POST", func() {
			resp, err := http.Get(ts.URL + "/invoke/get_global_state")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusMethodNotAllowed))
		})
	})

	Describe("client", func() {
		It("reports health", func() {
			Expect(client.Healthz(ctx)).To(Succeed())
		})

		It("round-trips every command", func() {
			id := uuid.New()
			Expect(client.ToggleBus(ctx, id)).To(Succeed())
			Expect(client.UpdateSimulationSpeed(ctx, 0)).To(Succeed())
			Expect(client.UpdateRefreshRate(ctx, 100)).To(Succeed())

			snap, err := client.State(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.Speed).To(BeZero())
			Expect(snap.RefreshRate).To(BeEquivalentTo(100))
			Expect(snap.Buses).To(HaveKeyWithValue(id, sim.Bus{Percent: 0, IsActive: true}))

			state, err := client.GetGlobalState(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(state).To(ContainSubstring(id.String()))
		})

		It("surfaces server errors as APIError", func() {
			_, err := client.Invoke(ctx, "nope", nil)
			var apiErr *api.APIError
			Expect(errors.As(err, &apiErr)).To(BeTrue())
			Expect(apiErr.Status).To(Equal(http.StatusNotFound))
		})

		It("rejects a bad toggle path", func() {
			resp, err := http.Post(ts.URL+"/v1/buses/xyz/toggle", "", nil)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("stream", func() {
		It("pushes state frames that follow the ticking store", func() {
			id := uuid.New()
			tk := sim.NewTicker(id, store, 0, nil)
			Expect(client.UpdateRefreshRate(ctx, 5)).To(Succeed())

			streamCtx, stop := context.WithTimeout(ctx, 5*time.Second)
			defer stop()

			var last uint32
			err := client.Stream(streamCtx, func(s sim.Snapshot) bool {
				Expect(tk.Tick()).To(Succeed())
				b, ok := s.Bus(id)
				if !ok {
					return true
				}
				Expect(b.Percent).To(BeNumerically("<=", sim.MaxPercent))
				last = b.Percent
				return last < 2
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(last).To(BeNumerically(">=", 2))
			Expect(srv.Hub().Frames()).To(BeNumerically(">=", 1))
		})

		It("samples at the fallback interval while refresh rate is zero", func() {
			Expect(client.UpdateRefreshRate(ctx, 0)).To(Succeed())

			streamCtx, stop := context.WithTimeout(ctx, 5*time.Second)
			defer stop()

			frames := 0
			Expect(client.Stream(streamCtx, func(sim.Snapshot) bool {
				frames++
				return frames < 3
			})).To(Succeed())
			Expect(frames).To(Equal(3))
		})

		It("keeps clients connected under a refresh rate too large for a duration", func() {
			Expect(client.UpdateRefreshRate(ctx, 1e13)).To(Succeed())
			Expect(srv.Hub().Interval()).To(Equal(time.Duration(sim.MaxRefreshRate) * time.Millisecond))

			streamCtx, stop := context.WithTimeout(ctx, 300*time.Millisecond)
			defer stop()

			frames := 0
			err := client.Stream(streamCtx, func(sim.Snapshot) bool {
				frames++
				return true
			})
			Expect(err).To(MatchError(context.DeadlineExceeded))
			Expect(frames).To(BeNumerically("<=", 2))
			Expect(srv.Hub().Frames()).To(BeNumerically("<=", 1))
		})

		It("picks up a lowered refresh rate after a very long one", func() {
			Expect(client.UpdateRefreshRate(ctx, 1e13)).To(Succeed())

			streamCtx, stop := context.WithTimeout(ctx, 5*time.Second)
			defer stop()

			frames := 0
			Expect(client.Stream(streamCtx, func(sim.Snapshot) bool {
				frames++
				if frames == 1 {
					Expect(client.UpdateRefreshRate(ctx, 5)).To(Succeed())
				}
				return frames < 3
			})).To(Succeed())
			Expect(frames).To(Equal(3))
		})

		It("ends the stream when the hub stops", func() {
			done := make(chan error, 1)
			go func() {
				done <- client.Stream(context.Background(), func(sim.Snapshot) bool { return true })
			}()
			Eventually(srv.Hub().Clients).Should(Equal(1))

			cancel()
			Eventually(done, 2*time.Second).Should(Receive())
		})
	})

	Describe("stream commands", func() {
		var conn *websocket.Conn

		BeforeEach(func() {
			Expect(client.UpdateRefreshRate(ctx, 60000)).To(Succeed())

			var err error
			conn, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/v1/stream", nil)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(func() { conn.Close() })
		})

		nextResult := func() api.Frame {
			for {
				var f api.Frame
				Expect(conn.SetReadDeadline(time.Now().Add(2 * time.Second))).To(Succeed())
				Expect(conn.ReadJSON(&f)).To(Succeed())
				if f.Type == api.FrameResult {
					return f
				}
			}
		}

		It("runs a command sent over the socket", func() {
			id := uuid.New()
			Expect(conn.WriteJSON(api.Frame{
				Type:    api.FrameCommand,
				Command: command.ToggleBus,
				Args:    json.RawMessage(`{"busId":"` + id.String() + `"}`),
			})).To(Succeed())

			f := nextResult()
			Expect(f.Command).To(Equal(command.ToggleBus))
			Expect(f.Error).To(BeEmpty())
			Expect(f.Result).To(BeNil())

			bus, ok := store.Read().Bus(id)
			Expect(ok).To(BeTrue())
			Expect(bus).To(Equal(sim.Bus{Percent: 0, IsActive: true}))
		})

		It("returns the state document as the result of get_global_state", func() {
			Expect(conn.WriteJSON(api.Frame{Type: api.FrameCommand, Command: command.GetGlobalState})).To(Succeed())

			f := nextResult()
			Expect(f.Error).To(BeEmpty())
			Expect(f.Result).To(BeAssignableToTypeOf(""))
			Expect(f.Result).To(MatchJSON(`{"balance":0,"speed":1,"refresh_rate":60000,"buses":{}}`))
		})

		It("reports unknown commands without closing the socket", func() {
			Expect(conn.WriteJSON(api.Frame{Type: api.FrameCommand, Command: "self_destruct"})).To(Succeed())

			f := nextResult()
			Expect(f.Command).To(Equal("self_destruct"))
			Expect(f.Error).To(ContainSubstring("unknown command"))

			Expect(conn.WriteJSON(api.Frame{Type: api.FrameCommand, Command: command.UpdateSimulationSpeed, Args: json.RawMessage(`{"speed":7}`)})).To(Succeed())
			Expect(nextResult().Error).To(BeEmpty())
			Expect(store.Read().Speed).To(BeEquivalentTo(7))
		})

		It("answers malformed frames with an error result", func() {
			Expect(conn.WriteMessage(websocket.TextMessage, []byte("{not json"))).To(Succeed())

			f := nextResult()
			Expect(f.Command).To(BeEmpty())
			Expect(f.Error).NotTo(BeEmpty())
		})
	})
})
