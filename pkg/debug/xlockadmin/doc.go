// Package xlockadmin 锁管理器的运维面：统计、配置门面、定时巡检与调试命令。
//
// Admin 作为监听器注册到 Locker，累计加锁次数、持有时长、最大嵌套深度等统计；
// 配置门面以字符串读写时长，便于在调试命令与配置文件中使用；
// StartReport 按 cron 表达式定期输出持有过久的锁；
// Commands 返回可注册到 xdbg 服务器的命令：
//
//	locks              当前锁及创建现场
//	lockstat [reset]   统计
//	lockconf [k v]     查看或修改运行时配置
//	lockdisable <key>  禁用锁，等待者不持锁继续
//	listeners          监听器与熔断状态
package xlockadmin
