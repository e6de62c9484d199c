package qhybrid

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestBroadcastGroup(t *testing.T) {
	Convey("Given a broadcast group with two subscribers", t, func() {
		bg := NewBroadcastGroup("test")
		fast := bg.Subscribe(4)
		slow := bg.Subscribe(1)

		Convey("Send should deliver without blocking and count drops", func() {
			bg.Send(EpochMetrics{Epoch: 1})
			bg.Send(EpochMetrics{Epoch: 2})

			So((<-fast).Epoch, ShouldEqual, 1)
			So((<-fast).Epoch, ShouldEqual, 2)
			So((<-slow).Epoch, ShouldEqual, 1)

			m := bg.GetMetrics()
			So(m.MessagesSent, ShouldEqual, 3)
			So(m.MessagesDropped, ShouldEqual, 1)
			So(m.ActiveSubscribers, ShouldEqual, 2)
		})

		Convey("Close should end every subscription", func() {
			bg.Close()
			bg.Close()

			_, open := <-fast
			So(open, ShouldBeFalse)

			late := bg.Subscribe(1)
			_, open = <-late
			So(open, ShouldBeFalse)

			So(func() { bg.Send(EpochMetrics{}) }, ShouldNotPanic)
		})
	})
}
